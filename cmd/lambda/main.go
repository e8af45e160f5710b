// Package main provides the AWS Lambda entry point for the video compiler.
//
// The function accepts API Gateway proxy events as well as direct
// invocations carrying the compile request, and answers with an API Gateway
// proxy response whose body is the JSON compile result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/maauso/video-compiler/internal/bootstrap"
	"github.com/maauso/video-compiler/internal/compile"
	"github.com/maauso/video-compiler/internal/config"
)

// compiler is the part of the compile service the handler uses.
type compiler interface {
	Compile(ctx context.Context, req compile.Request) compile.Response
}

type handler struct {
	svc    compiler
	logger *slog.Logger
}

func (h *handler) handle(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error) {
	req, err := compile.DecodeEvent(raw)
	if err != nil {
		h.logger.Warn("failed to decode event", slog.String("error", err.Error()))
		return respond(http.StatusBadRequest, compile.ResponseBody{Error: err.Error()})
	}
	resp := h.svc.Compile(ctx, req)
	return respond(resp.StatusCode, resp.Body)
}

func respond(status int, body compile.ResponseBody) (events.APIGatewayProxyResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("encode response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(b),
	}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting video compiler lambda",
		slog.String("environment", cfg.Environment),
		slog.String("output_bucket", cfg.OutputBucket),
		slog.Bool("dynamo_enabled", cfg.DynamoEnabled()),
		slog.Bool("local_storage", cfg.LocalStorageEnabled()),
	)

	deps, err := bootstrap.NewDependencies(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	h := &handler{svc: deps.CompileService, logger: logger}
	lambda.Start(h.handle)
	return nil
}
