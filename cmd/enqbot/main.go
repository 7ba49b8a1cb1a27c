// Command enqbot runs the survey bot: an HTTP webhook endpoint, the durable
// workflow worker, and the sqlite-backed workflow engine in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/sqlite"
	"github.com/enqbot/enqbot/client"
	"github.com/enqbot/enqbot/messaging"
	promadapter "github.com/enqbot/enqbot/metrics/prometheus"
	"github.com/enqbot/enqbot/survey"
	"github.com/enqbot/enqbot/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	addr          string
	channelSecret string
	accessToken   string
	dbPath        string
	redisAddr     string
	promptsPath   string
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "enqbot",
		Short:        "Durable survey bot over a messaging webhook",
		SilenceUsage: true,
	}

	cfg := &config{}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and workflow worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	serve.Flags().StringVar(&cfg.addr, "addr", envOr("ENQBOT_ADDR", ":8080"), "listen address")
	serve.Flags().StringVar(&cfg.channelSecret, "channel-secret", os.Getenv("ENQBOT_CHANNEL_SECRET"), "webhook channel secret")
	serve.Flags().StringVar(&cfg.accessToken, "access-token", os.Getenv("ENQBOT_ACCESS_TOKEN"), "messaging channel access token")
	serve.Flags().StringVar(&cfg.dbPath, "db", envOr("ENQBOT_DB", "enqbot.db"), "sqlite database path")
	serve.Flags().StringVar(&cfg.redisAddr, "redis", os.Getenv("ENQBOT_REDIS_ADDR"), "redis address for the participant lock (optional)")
	serve.Flags().StringVar(&cfg.promptsPath, "prompts", os.Getenv("ENQBOT_PROMPTS"), "survey prompts YAML file (optional)")

	root.AddCommand(serve)

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func runServe(ctx context.Context, cfg *config) error {
	if cfg.channelSecret == "" {
		return errors.New("channel secret is required (--channel-secret or ENQBOT_CHANNEL_SECRET)")
	}
	if cfg.accessToken == "" {
		return errors.New("access token is required (--access-token or ENQBOT_ACCESS_TOKEN)")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	catalog := survey.DefaultCatalog()
	if cfg.promptsPath != "" {
		var err error
		catalog, err = survey.LoadCatalog(cfg.promptsPath)
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metricsClient := promadapter.NewClient(registry)

	b := sqlite.NewSqliteBackend(cfg.dbPath,
		backend.WithLogger(logger),
		backend.WithMetrics(metricsClient),
	)
	defer b.Close()

	messenger := messaging.NewHTTPClient(cfg.accessToken)
	activities := survey.NewActivities(messenger, catalog)
	surveyWorkflow := survey.NewSurvey(activities)

	w := worker.New(b, nil)
	if err := w.RegisterWorkflow(surveyWorkflow.Run); err != nil {
		return err
	}
	if err := w.RegisterActivity(activities.SendNextQuestion); err != nil {
		return err
	}
	if err := w.RegisterActivity(activities.SendSummary); err != nil {
		return err
	}

	var locker survey.Locker
	if cfg.redisAddr != "" {
		locker = survey.NewRedisLocker(redis.NewClient(&redis.Options{Addr: cfg.redisAddr}))
	} else {
		locker = survey.NewKeyedMutex()
	}

	handler := survey.NewHandler(client.New(b), messenger, catalog, surveyWorkflow, locker, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/webhook", webhookHandler(cfg.channelSecret, handler, logger))
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    cfg.addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down server", "error", err)
	}

	return w.WaitForCompletion()
}

func webhookHandler(channelSecret string, handler *survey.Handler, logger *slog.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			http.Error(rw, "", http.StatusBadRequest)
			return
		}

		events, err := messaging.ParseWebhook(channelSecret, body, req.Header.Get("X-Line-Signature"))
		if err != nil {
			if errors.Is(err, messaging.ErrInvalidSignature) {
				http.Error(rw, "", http.StatusUnauthorized)
				return
			}

			http.Error(rw, "", http.StatusBadRequest)
			return
		}

		if err := handler.HandleEvents(req.Context(), events); err != nil {
			logger.Error("Error handling webhook events", "error", err)
			http.Error(rw, "", http.StatusInternalServerError)
			return
		}

		rw.WriteHeader(http.StatusOK)
	}
}
