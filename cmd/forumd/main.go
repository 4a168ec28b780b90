package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/goware/cachestore/memlru"
	"github.com/layer-3/forum/adapters/docstore"
	"github.com/layer-3/forum/adapters/events"
	"github.com/layer-3/forum/adapters/oracle"
	"github.com/layer-3/forum/adapters/siwe"
	"github.com/layer-3/forum/adapters/store"
	"github.com/layer-3/forum/adapters/tokenizer"
	"github.com/layer-3/forum/config"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/layer-3/forum/service"
	"github.com/layer-3/forum/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const communityCacheSize = 64

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	privateKey, ephemeral, err := cfg.SigningKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load session signing key")
	}
	if ephemeral {
		logger.Warn().Msg("Using an ephemeral session signing key, sessions end on restart")
	}

	// Storage and event backends: Redis when configured, memory otherwise
	var (
		ledger    ports.NonceLedger
		docs      ports.DocumentStore
		publisher message.Publisher
	)
	wmLogger := events.NewZerologAdapter(logger)

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse Redis URL")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			wmLogger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Redis publisher")
		}

		ledger = store.NewRedisLedger(redisClient)
		docs = docstore.NewRedisStore(redisClient)
	} else {
		logger.Warn().Msg("No Redis URL configured, keeping state in memory")
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		ledger = store.NewMemoryLedger()
		docs = docstore.NewMemoryStore()
	}
	defer publisher.Close()

	// Identity oracle: the World Chain address book, or a static list for local use
	var (
		identity ports.IdentityOracle
		caller   ethereum.ContractCaller
	)
	if cfg.Oracle.RPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.Oracle.RPCURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to chain RPC")
		}
		defer client.Close()
		caller = client

		identity, err = oracle.NewAddressBookOracle(client, cfg.Oracle.AddressBook)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create identity oracle")
		}
	} else {
		logger.Warn().Int("addresses", len(cfg.Oracle.VerifiedAddresses)).Msg("No chain RPC configured, using static identity oracle")
		identity = oracle.NewStaticOracle(cfg.Oracle.VerifiedAddresses...)
	}

	eventPub := events.NewWatermillPublisher(publisher)

	forumService, err := service.NewForumService(docs, eventPub, memlru.Backend(communityCacheSize), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create forum service")
	}
	if _, err := forumService.SeedCommunities(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to seed communities")
	}

	authService := service.NewAuthService(service.AuthDependencies{
		Codec:  tokenizer.NewJWTCodec(privateKey),
		Ledger: ledger,
		Verifier: siwe.NewVerifier(siwe.Options{
			Domain: cfg.Auth.SIWEDomain,
			Caller: caller,
		}, logger),
		Oracle: identity,
		Policy: core.NewAllowList(cfg.Auth.BypassAddresses),
		Events: eventPub,
		Users:  forumService,
	}, logger)

	// Setup Gin router
	router := http.SetupRouter(authService, forumService, http.CookieOptions{
		Secure: cfg.HTTP.SecureCookies,
		Domain: cfg.HTTP.CookieDomain,
	}, logger)

	server := &nethttp.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down server")
		}
	}()

	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("mode", cfg.Mode.String()).
		Int("bypass_addresses", len(cfg.Auth.BypassAddresses)).
		Msg("Starting server")

	// Start server
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
	logger.Info().Msg("Server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "forumd").Logger()
}
