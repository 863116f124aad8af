package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	apihttp "github.com/agrivaani/agrivaani/internal/adapters/http"
	"github.com/agrivaani/agrivaani/internal/adapters/ivr"
	"github.com/agrivaani/agrivaani/internal/adapters/whatsapp"
	"github.com/agrivaani/agrivaani/internal/docgate"
	"github.com/agrivaani/agrivaani/internal/driver"
	"github.com/agrivaani/agrivaani/internal/genai"
	"github.com/agrivaani/agrivaani/internal/logging"
	"github.com/agrivaani/agrivaani/internal/metrics"
	"github.com/agrivaani/agrivaani/internal/recommend"
	"github.com/agrivaani/agrivaani/internal/resolver"
	"github.com/agrivaani/agrivaani/internal/retrieval"
	"github.com/agrivaani/agrivaani/pkg/adapters/memory"
	redisstore "github.com/agrivaani/agrivaani/pkg/adapters/redis"
	"github.com/agrivaani/agrivaani/pkg/adapters/sqlite"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
	"github.com/agrivaani/agrivaani/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation server",
	Long: `Starts the AgriVaani server: the canonical JSON turn API plus the
WhatsApp and voice webhooks, with prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("redis", "", "Redis address for sessions and locks (e.g. localhost:6379)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().String("sqlite", "", "SQLite database path for sessions")
	serveCmd.Flags().String("api-key", os.Getenv("GENAI_API_KEY"), "API key for the AI endpoint")
	serveCmd.Flags().String("genai-base-url", os.Getenv("GENAI_BASE_URL"), "Base URL of an OpenAI-compatible endpoint")
	serveCmd.Flags().String("model", "openai/gpt-oss-120b", "Model for classification, translation and recommendations")
	serveCmd.Flags().String("vision-model", "", "Model for document verification (default: --model)")
	serveCmd.Flags().String("retrieval-url", os.Getenv("RETRIEVAL_URL"), "Base URL of the evidence retrieval service")
	serveCmd.Flags().String("public-url", os.Getenv("PUBLIC_URL"), "Public base URL for voice webhook callbacks")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command) error {
	logger := logging.New(parseLevel(flagString(cmd, "log-level")))

	reg, err := loadRegistry(cmd)
	if err != nil {
		return fmt.Errorf("loading flows: %w", err)
	}

	// Session persistence.
	var (
		store      ports.SessionStore
		sessionOps []session.Option
	)
	switch {
	case flagString(cmd, "redis") != "":
		client := backend.NewClient(&backend.Options{
			Addr:     flagString(cmd, "redis"),
			Password: flagString(cmd, "redis-password"),
			DB:       flagInt(cmd, "redis-db"),
		})
		store = redisstore.NewFromClient(client, redisstore.WithTTL(24*time.Hour))
		sessionOps = append(sessionOps, session.WithLocker(redisstore.NewLocker(client, "agrivaani:")))
		logger.Info("using redis session store", "addr", flagString(cmd, "redis"))
	case flagString(cmd, "sqlite") != "":
		s, err := sqlite.Open(flagString(cmd, "sqlite"))
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("using sqlite session store", "path", flagString(cmd, "sqlite"))
	default:
		store = memory.NewStore()
		logger.Info("using in-memory session store")
	}
	sessionOps = append(sessionOps, session.WithLogger(logger))
	sessions := session.NewManager(store, sessionOps...)

	// Observability: prometheus collectors plus structured turn logging.
	m := metrics.New(prometheus.DefaultRegisterer)
	hooks := domain.CombineHooks(m.Hooks(), domain.LifecycleHooks{
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			logger.Info("turn",
				"flow", e.FlowID,
				"node", e.NodeID,
				"channel", e.Channel,
				"terminal", e.Terminal,
				"duplicate", e.Duplicate,
			)
		},
	})

	// External AI services; everything degrades to fallbacks without a key.
	var ai *genai.Client
	if key := flagString(cmd, "api-key"); key != "" {
		ai = genai.NewClient(genai.Config{
			APIKey:      key,
			BaseURL:     flagString(cmd, "genai-base-url"),
			Model:       flagString(cmd, "model"),
			VisionModel: flagString(cmd, "vision-model"),
		})
	} else {
		logger.Warn("no AI api key configured, running with deterministic fallbacks only")
	}

	var (
		classifier  ports.Classifier
		translator  ports.Translator
		completer   ports.Completer
		verifier    ports.DocumentVerifier
		transcriber ports.Transcriber
	)
	if ai != nil {
		classifier, translator, completer, verifier, transcriber = ai, ai, ai, ai, ai
	}

	res := resolver.New(classifier, resolver.WithHooks(hooks), resolver.WithLogger(logger))

	gateOpts := []docgate.Option{docgate.WithHooks(hooks), docgate.WithLogger(logger)}
	if verifier != nil {
		gateOpts = append(gateOpts, docgate.WithVerifier(verifier))
	}
	gate := docgate.New(gateOpts...)

	handoffOpts := []recommend.Option{recommend.WithHooks(hooks), recommend.WithLogger(logger)}
	if url := flagString(cmd, "retrieval-url"); url != "" {
		handoffOpts = append(handoffOpts, recommend.WithRetriever(retrieval.NewClient(url)))
	}
	handoff := recommend.New(completer, handoffOpts...)

	eng := driver.New(reg, sessions, res, gate,
		driver.WithTranslator(translator),
		driver.WithHandoff(handoff),
		driver.WithHooks(hooks),
		driver.WithLogger(logger),
	)

	// Channel routing.
	r := chi.NewRouter()
	r.Mount("/", apihttp.NewHandler(eng, reg, apihttp.WithLogger(logger)))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/whatsapp", whatsapp.NewHandler(eng, whatsapp.WithLogger(logger)))

	ivrOpts := []ivr.Option{ivr.WithLogger(logger)}
	if transcriber != nil {
		ivrOpts = append(ivrOpts,
			ivr.WithTranscriber(transcriber),
			ivr.WithRecordingFetcher(ivr.NewHTTPFetcher(
				os.Getenv("TWILIO_ACCOUNT_SID"),
				os.Getenv("TWILIO_AUTH_TOKEN"),
			)),
		)
	}
	r.Mount("/ivr", ivr.NewHandler(eng, reg, flagString(cmd, "public-url"), ivrOpts...).Routes())

	srv := &http.Server{
		Addr:    ":" + flagString(cmd, "port"),
		Handler: r,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "flows", reg.IDs())
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		logger.Info("server stopped gracefully")
		return nil
	}
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func flagInt(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
