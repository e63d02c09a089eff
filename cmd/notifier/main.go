package main

import (
	"context"
	"github.com/ariefcatur/go-dairy-orders/internal/config"
	"github.com/ariefcatur/go-dairy-orders/internal/email"
	kafkax "github.com/ariefcatur/go-dairy-orders/internal/kafka"
	"github.com/ariefcatur/go-dairy-orders/internal/notify"
	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	"github.com/ariefcatur/go-dairy-orders/internal/redisx"
	"github.com/joho/godotenv"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &notify.Handler{
		Mailer: email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		Dedup:  &redisx.Dedup{RDB: rdb, Service: cfg.NotifierGroup},
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderPlaced, cfg.NotifierWorkers)
	log.Printf("notifier started: group=%s topic=%s workers=%d", cfg.NotifierGroup, orders.TopicOrderPlaced, cfg.NotifierWorkers)
	if err := cons.Start(ctx, h.HandleOrderPlaced); err != nil {
		log.Fatalf("consumer exit: %v", err)
	}
	log.Println("notifier stopped")
}
