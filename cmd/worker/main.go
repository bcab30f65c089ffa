package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	workerconfig "aidledger/internal/app/worker/config"
	workerserver "aidledger/internal/app/worker/server"
)

func main() {
	cfg := workerconfig.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := workerserver.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}
	defer srv.Close()

	log.Printf("worker consuming audit topic %s", cfg.KafkaAuditTopic)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("worker stopped: %v", err)
	}
}
