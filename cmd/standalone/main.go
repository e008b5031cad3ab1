package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dbauthd/core"
	"dbauthd/core/providers"
	"dbauthd/logging"
	"dbauthd/metrics"
	"dbauthd/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	DbAuth    core.DbAuthConfig `yaml:"dbauth"`
	Providers ProvidersConfig   `yaml:"providers"`

	DB   DBConfig  `yaml:"db"`
	Log  LogConfig `yaml:"log"`
	Port string    `yaml:"port"`
}

type DBConfig struct {
	Type       string            `yaml:"type"`
	SQLitePath string            `yaml:"sqlite_path"`
	YDB        storage.YDBConfig `yaml:"ydb"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ProvidersConfig enables third-party token decoders. dbAuth is always registered.
type ProvidersConfig struct {
	Auth0    *providers.JWKSConfig `yaml:"auth0,omitempty"`
	Clerk    *providers.JWKSConfig `yaml:"clerk,omitempty"`
	Azure    *providers.JWKSConfig `yaml:"azure_active_directory,omitempty"`
	Supabase bool                  `yaml:"supabase"` // secret from SUPABASE_JWT_SECRET
	Netlify  bool                  `yaml:"netlify"`
}

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	appConfig := loadConfigFromYAML(configPath)
	appConfig.DbAuth.ApplyEnv()

	logger := logging.New(appConfig.Log.Level, appConfig.Log.Pretty)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := initRepository(ctx, appConfig.DB, logger)
	defer closeRepo()

	host := &hostHandlers{repo: repo, logger: logger}
	host.install(&appConfig.DbAuth)

	dbAuth, err := core.NewDbAuthHandler(&appConfig.DbAuth, repo, logger, core.WithMetrics(m))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize dbAuth handler")
	}

	decoders := initDecoders(appConfig, dbAuth, logger)
	resolver := core.NewAuthContextResolver(decoders, m)

	server := core.NewServer(dbAuth, resolver, logger,
		core.WithCurrentUser(host.currentUser),
		core.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down server")
		}
	}()

	logger.Info().
		Str("port", appConfig.Port).
		Strs("providers", getConfiguredProviders(decoders)).
		Bool("development", appConfig.DbAuth.Development).
		Msg("starting dbauthd server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

func loadConfigFromYAML(path string) *AppConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Str("path", path).Msg("failed to read config file")
	}

	config := AppConfig{Port: "8080"}
	if err := yaml.Unmarshal(data, &config); err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to parse config file")
	}

	return &config
}

func initRepository(ctx context.Context, dbConfig DBConfig, logger zerolog.Logger) (core.Repository, func()) {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(dbConfig.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize SQLite repository")
		}
		logger.Info().Str("path", dbConfig.SQLitePath).Msg("using SQLite database")
		return repo, func() { repo.Close() }

	case "ydb":
		repo, err := storage.NewYDBRepository(ctx, dbConfig.YDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize YDB repository")
		}
		logger.Info().Msg("using YDB database")
		return repo, func() { repo.Close() }

	case "mock":
		logger.Info().Msg("using mock repository (in-memory)")
		return storage.NewMockRepository(), func() {}

	default:
		logger.Fatal().Str("type", dbConfig.Type).Msg("unsupported DB type (supported: sqlite, ydb, mock)")
		return nil, nil
	}
}

func initDecoders(cfg *AppConfig, dbAuth *core.DbAuthHandler, logger zerolog.Logger) *core.DecoderRegistry {
	registry := core.NewDecoderRegistry(logger, cfg.DbAuth.Development)
	registry.Register(core.ProviderDbAuth, providers.NewDbAuthDecoder(dbAuth.SessionCodec(), logger))

	p := cfg.Providers
	if p.Auth0 != nil {
		registry.Register(core.ProviderAuth0, providers.NewJWKSDecoder(p.Auth0))
	}
	if p.Clerk != nil {
		registry.Register(core.ProviderClerk, providers.NewJWKSDecoder(p.Clerk))
	}
	if p.Azure != nil {
		registry.Register(core.ProviderAzureActiveDirectory, providers.NewJWKSDecoder(p.Azure))
	}
	if p.Supabase {
		secret := os.Getenv("SUPABASE_JWT_SECRET")
		if secret == "" {
			logger.Fatal().Msg("supabase provider enabled but SUPABASE_JWT_SECRET is not set")
		}
		registry.Register(core.ProviderSupabase, providers.NewSupabaseDecoder(secret))
	}
	if p.Netlify {
		registry.Register(core.ProviderNetlify, providers.NewNetlifyDecoder(cfg.DbAuth.Development))
	}

	return registry
}

func getConfiguredProviders(registry *core.DecoderRegistry) []string {
	registered := registry.Providers()
	providerNames := make([]string, 0, len(registered))
	for _, provider := range registered {
		providerNames = append(providerNames, string(provider))
	}
	return providerNames
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
