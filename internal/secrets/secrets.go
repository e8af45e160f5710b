// Package secrets resolves credentials from SSM Parameter Store with an
// environment variable fallback.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrSecretNotFound is returned when neither SSM nor the environment has
// a value for the secret.
var ErrSecretNotFound = errors.New("secret not found")

// ParameterGetter is the subset of the SSM client used by Resolver.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver looks secrets up under <prefix>/<environment>/<name>.
type Resolver struct {
	client      ParameterGetter
	prefix      string
	environment string
	lookupEnv   func(string) (string, bool)
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupEnv replaces os.LookupEnv for the environment fallback.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// NewResolver creates a Resolver. client may be nil, in which case only the
// environment is consulted.
func NewResolver(client ParameterGetter, prefix, environment string, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		client:      client,
		prefix:      strings.TrimRight(prefix, "/"),
		environment: strings.Trim(environment, "/"),
		lookupEnv:   os.LookupEnv,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ParameterName returns the full SSM parameter name for a secret.
func (r *Resolver) ParameterName(name string) string {
	return r.prefix + "/" + r.environment + "/" + strings.TrimLeft(name, "/")
}

// Lookup returns the decrypted SSM parameter for name, or the value of
// envVar when SSM has none. SSM errors other than a missing parameter are
// logged and fall through to the environment.
func (r *Resolver) Lookup(ctx context.Context, name, envVar string) (string, error) {
	if r.client != nil {
		param := r.ParameterName(name)
		start := time.Now()
		out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(param),
			WithDecryption: aws.Bool(true),
		})
		switch {
		case err == nil && out.Parameter != nil && out.Parameter.Value != nil:
			r.logger.Debug("secret loaded from SSM",
				slog.String("param", param),
				slog.Duration("elapsed", time.Since(start)),
			)
			return *out.Parameter.Value, nil
		case err != nil && !isNotFound(err):
			r.logger.Warn("SSM lookup failed, trying environment",
				slog.String("param", param),
				slog.String("error", err.Error()),
			)
		}
	}

	if envVar != "" {
		if v, ok := r.lookupEnv(envVar); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

func isNotFound(err error) bool {
	var nf *types.ParameterNotFound
	return errors.As(err, &nf)
}
