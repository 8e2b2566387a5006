package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jogardn/bakery-orders/internal/api"
	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/captcha"
	"github.com/jogardn/bakery-orders/internal/circuitbreaker"
	"github.com/jogardn/bakery-orders/internal/config"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/payment"
	"github.com/jogardn/bakery-orders/internal/ratelimit"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/internal/store/memory"
	"github.com/jogardn/bakery-orders/internal/store/postgres"
	"github.com/jogardn/bakery-orders/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.IsDevelopment() {
		logger.SetReportCaller(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Bakery API stopped with error")
	}
	logger.Info("Server gracefully stopped")
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	breakers := circuitbreaker.NewManager(logger)

	mailer := notify.Resolve(cfg.Email, notify.Endpoints{}, breakers, logger)
	notifier, err := notify.NewNotifier(mailer, cfg.Email.FromName, cfg.FrontendURL)
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}

	payments := payment.NewClient(cfg.Payment.APIURL, cfg.Payment.SecretKey, cfg.Payment.Currency,
		breakers.GetOrCreate("payment", breakerConfig("payment", payment.IsFailure)))
	if !payments.Configured() {
		logger.Warn("PAYMENT_SECRET_KEY not set, online payment is disabled")
	}
	verifier := captcha.NewVerifier(captcha.Options{
		Secret:   cfg.Captcha.SecretKey,
		MinScore: cfg.Captcha.MinScore,
		Endpoint: cfg.Captcha.VerifyURL,
		Env:      cfg.Env,
	}, breakers.GetOrCreate("captcha", breakerConfig("captcha", nil)), logger)
	google := auth.NewGoogleVerifier(cfg.GoogleClientID, "",
		breakers.GetOrCreate("google", breakerConfig("google", auth.IsGoogleFailure)))

	g, gctx := errgroup.WithContext(ctx)

	hub := websocket.NewHub(cfg.CORSOrigins, logger)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// With Kafka every instance publishes there and, with the relay on,
	// reads all events back into its own hub so admins see orders placed on
	// any instance.
	var publisher events.Publisher = hub
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		defer kafka.Close()

		if cfg.KafkaLiveRelay {
			publisher = kafka
			groupID := fmt.Sprintf("%s-live-%s", cfg.KafkaTopic, uuid.NewString())
			relay, err := events.NewRelay(cfg.KafkaBrokers, groupID, cfg.KafkaTopic, hub, logger)
			if err != nil {
				return err
			}
			g.Go(func() error { return relay.Start(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				return relay.Close()
			})
		} else {
			publisher = events.Fanout{kafka, hub}
		}
		logger.WithFields(logrus.Fields{
			"brokers": cfg.KafkaBrokers,
			"relay":   cfg.KafkaLiveRelay,
		}).Info("Publishing events to Kafka")
	}

	counter, closeCounter, err := rateCounter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCounter()
	limiter := ratelimit.New(counter, cfg.IsProduction(), api.RejectRateLimited, logger)

	handler := api.NewHandler(api.Deps{
		Store:       st,
		Tokens:      auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		Notifier:    notifier,
		Payments:    payments,
		Captcha:     verifier,
		Google:      google,
		Publisher:   publisher,
		Live:        hub,
		Breakers:    breakers,
		Limiter:     limiter,
		Shop:        cfg.Shop,
		CORSOrigins: cfg.CORSOrigins,
		Env:         cfg.Env,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":  cfg.HTTPAddr,
			"env":   cfg.Env,
			"store": cfg.StoreDriver,
			"email": notifier.Provider(),
		}).Info("Starting bakery API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.New(), nil
	}
	pg, err := postgres.Open(ctx, cfg.DatabaseURL, 30, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return pg, nil
}

// rateCounter shares counters through Redis when configured so limits hold
// across instances.
func rateCounter(ctx context.Context, cfg config.Config, logger *logrus.Logger) (ratelimit.Counter, func() error, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryCounter(), func() error { return nil }, nil
	}
	rdb := ratelimit.NewRedisClient(cfg.RedisAddr)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Rate limits stored in Redis")
	return ratelimit.NewRedisCounter(rdb), rdb.Close, nil
}

func breakerConfig(name string, isFailure func(error) bool) circuitbreaker.Config {
	c := circuitbreaker.DefaultConfig()
	c.Name = name
	c.IsFailure = isFailure
	return c
}
