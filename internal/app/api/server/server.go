package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aidledger/internal/app/api/config"
	"aidledger/internal/app/api/router"
	"aidledger/internal/db"
	"aidledger/internal/domain/campaign"
	"aidledger/internal/domain/claim"
	"aidledger/internal/domain/verification"
	"aidledger/internal/kafka"
	auditstream "aidledger/internal/messaging/audit"
	"aidledger/internal/notify"
	"aidledger/internal/observability/metrics"
	"aidledger/internal/onchain"
	"aidledger/internal/queue"
	redispkg "aidledger/internal/redis"
)

// Server wires infrastructure dependencies for the API service.
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	store      *db.Store
	redis      *redispkg.Client
	producer   *kafka.Producer
}

// New constructs the server and underlying dependencies. Adapter selection
// happens here so a misconfigured ONCHAIN_ADAPTER fails at startup.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	adapter, err := onchain.New(cfg.OnchainAdapter)
	if err != nil {
		return nil, fmt.Errorf("onchain adapter selection: %w", err)
	}

	store, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	redisClient, err := redispkg.New(cfg.RedisAddr)
	if err != nil {
		store.Close()
		return nil, err
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	if err != nil {
		_ = redisClient.Close()
		store.Close()
		return nil, err
	}

	recorder := auditstream.NewPublisher(producer)
	jobQueue := queue.New(redisClient)
	sender := notify.NewSender(jobQueue)
	onchainJobs := onchain.NewService(jobQueue)

	campaignSvc := campaign.NewService(store, recorder)
	claimSvc := claim.NewService(store, adapter, recorder, metrics.Onchain{}, onchainJobs, claim.Config{
		OnchainEnabled: cfg.OnchainEnabled,
		AdapterTimeout: cfg.OnchainTimeout,
	})
	verificationSvc := verification.NewService(store, sender, verification.Config{
		CodeLength:       cfg.OTPLength,
		TTL:              cfg.OTPTTL,
		MaxStartsPerHour: cfg.MaxStartsPerHour,
		MaxResends:       cfg.MaxResends,
		MaxAttempts:      cfg.MaxAttempts,
	})

	ginRouter := router.New(router.Dependencies{
		CampaignService:     campaignSvc,
		ClaimService:        claimSvc,
		VerificationService: verificationSvc,
		Queue:               jobQueue,
		Store:               store,
		Redis:               redisClient,
	})

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: ginRouter}
	return &Server{
		cfg:        cfg,
		httpServer: httpSrv,
		store:      store,
		redis:      redisClient,
		producer:   producer,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is canceled or fatal error occurs.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Close releases infrastructure resources.
func (s *Server) Close() {
	_ = s.httpServer.Close()
	if s.producer != nil {
		_ = s.producer.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}
