// server runs the SSI migration bridge HTTP API.
package main

import (
	"context"
	"crypto"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ssi-migration-bridge/internal/audit"
	auditrepo "ssi-migration-bridge/internal/audit/repository"
	bridgehandler "ssi-migration-bridge/internal/bridge/handler"
	bridgeservice "ssi-migration-bridge/internal/bridge/service"
	"ssi-migration-bridge/internal/config"
	"ssi-migration-bridge/internal/db"
	"ssi-migration-bridge/internal/db/migrate"
	healthhandler "ssi-migration-bridge/internal/health/handler"
	mappinghandler "ssi-migration-bridge/internal/mapping/handler"
	mappingrepo "ssi-migration-bridge/internal/mapping/repository"
	mappingservice "ssi-migration-bridge/internal/mapping/service"
	"ssi-migration-bridge/internal/policy/engine"
	"ssi-migration-bridge/internal/security"
	"ssi-migration-bridge/internal/server"
	"ssi-migration-bridge/internal/server/middleware"
	"ssi-migration-bridge/internal/ssi/credential"
	"ssi-migration-bridge/internal/ssi/did"
	ssihandler "ssi-migration-bridge/internal/ssi/handler"
	ssistore "ssi-migration-bridge/internal/ssi/store"
	"ssi-migration-bridge/internal/ssi/wallet"
	"ssi-migration-bridge/internal/telemetry"
	"ssi-migration-bridge/internal/telemetry/otel"
	"ssi-migration-bridge/internal/telemetry/producer"
	"ssi-migration-bridge/internal/translator"
)

// documentCacheSize bounds each collaborator's LRU over the document store.
const documentCacheSize = 512

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()

	signingKey, publicKey, err := loadKeys(cfg, logger)
	if err != nil {
		logger.Fatal("jwt keys", zap.Error(err))
	}
	trans := translator.New(cfg.JWTIssuer, cfg.JWTAudience, bridgeDID(cfg), signingKey, publicKey, cfg.SessionTTL(), nil)

	policy, err := engine.NewOPAEvaluator("")
	if err != nil {
		logger.Fatal("policy engine", zap.Error(err))
	}
	correlator := mappingservice.NewCorrelator(mappingrepo.NewPostgresStore(pool), policy, logger, nil)

	docs := ssistore.NewCached(ssistore.NewPostgres(pool, nil), documentCacheSize)
	registry := did.NewSimulator(docs, nil)
	issuer := credential.NewSimulator(docs, security.MockSigner{}, bridgeDID(cfg), 0, nil)
	connector := wallet.NewSimulator(docs, issuer, cfg.WalletDelay(), "", nil)

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "ssi-migration-bridge", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("telemetry providers", zap.Error(err))
	}
	providers.SetGlobal()

	metricEmitter, err := otel.NewEventEmitter(providers.MeterProvider)
	if err != nil {
		logger.Fatal("event emitter", zap.Error(err))
	}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.EventsKafkaBrokersList(), cfg.EventsKafkaTopic)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	emitters := telemetry.FanOut{metricEmitter}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer func() { _ = kafkaProducer.Close() }()
	}

	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(pool), middleware.ClientIPFromContext, logger)

	orch := bridgeservice.New(
		correlator, trans, registry, issuer, connector,
		security.NewHasher(cfg.BcryptCost), emitters, auditLogger, logger,
		cfg.DependencyTimeout(), cfg.UnverifiedIssuerSet(), nil,
	)

	handler := server.New(server.Deps{
		Bridge:      bridgehandler.New(orch, logger),
		Mappings:    mappinghandler.New(correlator, logger),
		SSI:         ssihandler.New(registry, issuer, connector, logger),
		Health:      healthhandler.New(pool, policy, logger),
		Translator:  trans,
		Audit:       auditLogger,
		Tracer:      providers.TracerProvider,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	// In-flight async emits use background contexts; give them time to land
	// before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// loadKeys parses the configured JWT key pair, or generates an ephemeral
// ECDSA key outside production so the server can boot unconfigured.
func loadKeys(cfg *config.Config, logger *zap.Logger) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey != "" {
		signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, nil, err
		}
		pub := signer.Public()
		if cfg.JWTPublicKey != "" {
			if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
				return nil, nil, err
			}
		}
		return signer, pub, nil
	}
	if cfg.Env == "production" {
		return nil, nil, errors.New("JWT_PRIVATE_KEY is required in production")
	}
	logger.Warn("no JWT key configured; using an ephemeral key, sessions will not survive restart")
	signer, err := security.GenerateEphemeralKey()
	if err != nil {
		return nil, nil, err
	}
	return signer, signer.Public(), nil
}

func bridgeDID(cfg *config.Config) string {
	if cfg.BridgeIssuerDID != "" {
		return cfg.BridgeIssuerDID
	}
	return "did:web:bridge.local"
}
