// Package bootstrap provides dependency initialization for the video compiler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/video-compiler/internal/compile"
	"github.com/maauso/video-compiler/internal/config"
	"github.com/maauso/video-compiler/internal/executor"
	"github.com/maauso/video-compiler/internal/job"
	"github.com/maauso/video-compiler/internal/media"
	"github.com/maauso/video-compiler/internal/memory"
	"github.com/maauso/video-compiler/internal/plan"
	"github.com/maauso/video-compiler/internal/secrets"
	"github.com/maauso/video-compiler/internal/storage"
	"github.com/maauso/video-compiler/internal/telemetry"
)

// Secret names resolved for S3-compatible storage credentials.
const (
	secretAccessKeyID     = "storage/access_key_id"
	secretSecretAccessKey = "storage/secret_access_key"
	envAccessKeyID        = "STORAGE_ACCESS_KEY_ID"
	envSecretAccessKey    = "STORAGE_SECRET_ACCESS_KEY"
)

// Dependencies holds all initialized dependencies for the entry points.
type Dependencies struct {
	CompileService *compile.Service
	Registry       *prometheus.Registry
	Governor       *memory.Governor
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// AWS clients are only needed when something lives in AWS
	var awsCfg *aws.Config
	if !cfg.LocalStorageEnabled() || cfg.DynamoEnabled() {
		loaded, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		awsCfg = &loaded
	}

	// Initialize secrets resolver
	var ssmClient secrets.ParameterGetter
	if awsCfg != nil {
		ssmClient = ssm.NewFromConfig(*awsCfg)
	}
	resolver := secrets.NewResolver(ssmClient, cfg.SSMPrefix, cfg.Environment, logger)

	// Initialize storage
	store, err := initStorage(ctx, cfg, resolver, logger)
	if err != nil {
		return nil, err
	}

	// Initialize job repository
	repo := initRepository(cfg, awsCfg, logger)

	// Initialize telemetry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := telemetry.NewMulti(
		telemetry.NewLogRecorder(logger),
		telemetry.NewPromRecorder(registry),
	)

	// Initialize memory governor
	governor := memory.NewGovernor(logger,
		memory.WithThreshold(cfg.MemoryThreshold),
		memory.WithRecorder(recorder),
	)

	// Initialize media tools and executor
	runner := media.NewExecRunner()
	prober := media.NewProber(runner, cfg.FFprobePath, cfg.ProbeTimeout(), logger)
	normalizer := media.NewNormalizer(runner, cfg.FFmpegPath, logger,
		media.WithClipTimeout(cfg.NormalizeTimeout()),
		media.WithCheckpointer(governor),
	)
	exec := executor.New(runner, cfg.FFmpegPath, logger,
		executor.WithTimeout(plan.TierFull, cfg.PrimaryTimeout()),
		executor.WithTimeout(plan.TierBasic, cfg.BasicTimeout()),
		executor.WithTimeout(plan.TierFallback, cfg.FallbackTimeout()),
		executor.WithMemoryMonitor(governor),
		executor.WithRecorder(recorder),
	)

	svc := compile.NewService(
		store,
		storage.NewFetcher(nil, logger),
		prober,
		normalizer,
		exec,
		repo,
		logger,
		compile.WithBuckets(compile.Buckets{
			Clips:  cfg.ClipsBucket,
			Music:  cfg.MusicBucket,
			Output: cfg.OutputBucket,
		}),
		compile.WithSignedURLTTL(cfg.SignedURLTTL()),
		compile.WithTempDir(cfg.TempDir),
		compile.WithBasicTierMinClips(cfg.BasicTierMinClips),
		compile.WithMemoryGovernor(governor),
		compile.WithRecorder(recorder),
	)

	return &Dependencies{
		CompileService: svc,
		Registry:       registry,
		Governor:       governor,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

// initStorage creates the appropriate object store based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.LocalStorageEnabled() {
		localStore, err := storage.NewLocalStore(cfg.LocalStorageDir)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		logger.Info("local storage configured",
			slog.String("dir", localStore.Root()),
		)
		return localStore, nil
	}

	accessKey, err := lookupOptional(ctx, resolver, secretAccessKeyID, envAccessKeyID)
	if err != nil {
		return nil, err
	}
	secretKey, err := lookupOptional(ctx, resolver, secretSecretAccessKey, envSecretAccessKey)
	if err != nil {
		return nil, err
	}

	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 storage configured",
		slog.String("region", cfg.S3Region),
		slog.String("endpoint", cfg.S3Endpoint),
		slog.Bool("static_credentials", accessKey != "" && secretKey != ""),
	)
	return s3Store, nil
}

// lookupOptional resolves a secret, treating absence as empty.
func lookupOptional(ctx context.Context, resolver *secrets.Resolver, name, envVar string) (string, error) {
	v, err := resolver.Lookup(ctx, name, envVar)
	if errors.Is(err, secrets.ErrSecretNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	return v, nil
}

// initRepository picks DynamoDB when a table is configured.
func initRepository(cfg *config.Config, awsCfg *aws.Config, logger *slog.Logger) job.Repository {
	if cfg.DynamoEnabled() && awsCfg != nil {
		logger.Info("DynamoDB job repository configured",
			slog.String("table", cfg.JobsTable),
		)
		return job.NewDynamoRepository(dynamodb.NewFromConfig(*awsCfg), cfg.JobsTable)
	}
	logger.Info("in-memory job repository configured")
	return job.NewMemoryRepository()
}
