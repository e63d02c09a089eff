package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-dairy-orders/internal/config"
	"github.com/ariefcatur/go-dairy-orders/internal/email"
	"github.com/ariefcatur/go-dairy-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-dairy-orders/internal/kafka"
	"github.com/ariefcatur/go-dairy-orders/internal/notify"
	"github.com/ariefcatur/go-dairy-orders/internal/orders"
	"github.com/ariefcatur/go-dairy-orders/internal/postgres"
	"github.com/ariefcatur/go-dairy-orders/internal/redisx"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{MaxConns: cfg.DBMaxConns, AppName: cfg.ServiceName})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Confirmations go through Kafka when brokers are configured, else straight to SMTP.
	var (
		sink notify.Sink
		prod *kafkax.Producer
	)
	pctx, cancelProducer := context.WithCancel(context.Background())
	defer cancelProducer()
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
		prod.Start(pctx)
		sink = &notify.EventSink{Producer: prod, Service: cfg.ServiceName}
	} else {
		sink = &notify.MailSink{Mailer: email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)}
	}
	notifier := notify.NewAsync(sink, cfg.NotifyTimeout, cfg.NotifyMaxInflight)

	ledger := &orders.Ledger{Store: &orders.Repo{DB: db}, Notifier: notifier}
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Ledger: ledger,
		Cache:  &redisx.OrderCache{RDB: rdb, TTL: redisx.TTLOrderCache},
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}

	// in-flight confirmations finish before the producer flushes
	notifier.Wait()
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
