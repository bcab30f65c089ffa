package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	workerconfig "aidledger/internal/app/worker/config"
	"aidledger/internal/audit"
	"aidledger/internal/db"
	auditstream "aidledger/internal/messaging/audit"
	"aidledger/internal/notify"
	"aidledger/internal/onchain"
	"aidledger/internal/queue"
	redispkg "aidledger/internal/redis"
)

// Server hosts the background half of the system: one worker pool per queue
// plus the Kafka consumer that persists audit entries.
type Server struct {
	cfg      workerconfig.Config
	store    *db.Store
	redis    *redispkg.Client
	workers  []*queue.Worker
	consumer *auditstream.Consumer
	metrics  *http.Server
}

// New builds the worker server and supporting dependencies.
func New(ctx context.Context, cfg workerconfig.Config) (*Server, error) {
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

	recorder := audit.NewStoreRecorder(store)
	auditConsumer, err := auditstream.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaAuditTopic, recorder)
	if err != nil {
		_ = redisClient.Close()
		store.Close()
		return nil, err
	}

	// Explicit worker registration: one pool per queue with its own
	// concurrency. The onchain pool is pinned to 1 so chain-affecting jobs
	// never race on a single chain account.
	notifyProcessor := notify.NewProcessor()
	onchainProcessor := onchain.NewProcessor(adapter)
	workers := []*queue.Worker{
		queue.NewWorker(redisClient, notify.QueueName, notifyProcessor.Process, cfg.NotifyConcurrency),
		queue.NewWorker(redisClient, onchain.QueueName, onchainProcessor.Process, 1),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	return &Server{
		cfg:      cfg,
		store:    store,
		redis:    redisClient,
		workers:  workers,
		consumer: auditConsumer,
		metrics:  metricsSrv,
	}, nil
}

// Run starts every worker pool and the audit consumer, blocking until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if s.metrics != nil {
		go func() {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("worker metrics server stopped: %v", err)
			}
		}()
		log.Printf("worker metrics listening on %s", s.cfg.MetricsAddr)
	}

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w *queue.Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("queue worker stopped: %v", err)
			}
		}(w)
	}

	err := s.consumer.Start(ctx)
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// Close releases resources.
func (s *Server) Close() {
	if s.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.Shutdown(shutdownCtx)
	}
	if s.consumer != nil {
		_ = s.consumer.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}
