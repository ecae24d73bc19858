// Command caseflow runs the engine boundary gateway: a reverse proxy that
// seals and opens process variables according to per-definition policy, plus
// the commit-time pipeline persisting form submissions to object storage and
// the search index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/caseflow/internal/censor"
	"github.com/rendis/caseflow/internal/crypto"
	"github.com/rendis/caseflow/internal/engine"
	"github.com/rendis/caseflow/internal/forms"
	"github.com/rendis/caseflow/internal/logging"
	"github.com/rendis/caseflow/internal/objectstore"
	"github.com/rendis/caseflow/internal/persist"
	"github.com/rendis/caseflow/internal/policy"
	"github.com/rendis/caseflow/internal/search"
	"github.com/rendis/caseflow/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "caseflow:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	engineClient := engine.NewClient(cfg.EngineURL, nil)
	resolver := &policy.Resolver{
		BucketPrefix: cfg.Storage.BucketNamePrefix,
		CaseBucket:   cfg.Storage.CaseBucketName,
	}

	objects, err := newObjectStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	index, err := newSearchIndex(cfg, logger)
	if err != nil {
		return err
	}

	splitter, err := forms.NewSplitter(cfg.FormAcceptExpr)
	if err != nil {
		return err
	}
	retry := persist.RetryPolicy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.retryDelay()}
	orch := persist.NewOrchestrator(objects, index, engineClient, db, retry, logger)
	listener := persist.NewListener(engineClient, resolver, orch, splitter, logger)

	if cfg.Sweeper.Enabled {
		sweeper, err := persist.NewSweeper(db, orch, cfg.Sweeper.Schedule, logger)
		if err != nil {
			return fmt.Errorf("sweeper schedule: %w", err)
		}
		go sweeper.Run(ctx)
	}

	proxy, err := newEngineProxy(cfg.EngineURL)
	if err != nil {
		return err
	}

	var engineHandler http.Handler = proxy
	if cfg.Encryption.Enabled {
		codec, err := crypto.NewCodec(crypto.CodecConfig{
			Passphrase: cfg.Encryption.Passphrase,
			Salt:       cfg.Encryption.Salt,
		})
		if err != nil {
			return err
		}
		cns := censor.New(codec, engineClient, resolver, cfg.EnginePathPrefix, logger)
		proxy.ModifyResponse = cns.ModifyResponse
		engineHandler = cns.Middleware(proxy)
	}

	mux := http.NewServeMux()
	mux.Handle("/history/variable-events", persist.NewHandler(listener, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", engineHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("caseflow listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("engine", cfg.EngineURL),
			slog.Bool("encryption", cfg.Encryption.Enabled),
			slog.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func newObjectStore(ctx context.Context, cfg Config, db store.Store) (objectstore.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Storage.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Storage.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return objectstore.NewS3Store(s3.NewFromConfig(awsCfg)), nil
	default:
		return objectstore.NewLocalStore(db), nil
	}
}

func newSearchIndex(cfg Config, logger *slog.Logger) (search.Index, error) {
	if len(cfg.Search.Addresses) == 0 {
		logger.Warn("no search addresses configured, submissions will not be indexed")
		return noopIndex{}, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Search.Addresses})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return search.NewElasticIndex(client), nil
}

// noopIndex drops documents when indexing is disabled.
type noopIndex struct{}

func (noopIndex) Index(context.Context, string, string, []byte) error { return nil }

func newEngineProxy(engineURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(engineURL)
	if err != nil {
		return nil, fmt.Errorf("engine url: %w", err)
	}
	// Proxy to the engine host; the incoming path already carries the
	// engine's own path prefix.
	return httputil.NewSingleHostReverseProxy(&url.URL{
		Scheme: target.Scheme,
		Host:   target.Host,
	}), nil
}
