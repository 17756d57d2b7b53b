package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/auth"
	"github.com/ariefcatur/go-laundry-orders/internal/cart"
	"github.com/ariefcatur/go-laundry-orders/internal/catalog"
	"github.com/ariefcatur/go-laundry-orders/internal/checkout"
	"github.com/ariefcatur/go-laundry-orders/internal/config"
	"github.com/ariefcatur/go-laundry-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/logging"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/payments"
	"github.com/ariefcatur/go-laundry-orders/internal/postgres"
	"github.com/ariefcatur/go-laundry-orders/internal/pricing"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

// stores groups the persistence backends picked at startup.
type stores struct {
	catalog   catalog.Repository
	orders    orders.Store
	addresses orders.AddressRepository
	promos    pricing.PromotionRepository
	sink      notify.Sink
	inbox     notify.Inbox
}

func openStores(db *pgxpool.Pool) stores {
	if db == nil {
		sink := notify.NewMemorySink()
		return stores{
			catalog:   catalog.NewMemoryRepo(),
			orders:    orders.NewMemoryStore(),
			addresses: orders.NewMemoryAddressRepo(),
			promos:    pricing.NewMemoryPromotionRepo(),
			sink:      sink,
			inbox:     sink,
		}
	}
	sink := &notify.PostgresSink{DB: db}
	return stores{
		catalog:   &catalog.Repo{DB: db},
		orders:    &orders.Repo{DB: db},
		addresses: &orders.AddressRepo{DB: db},
		promos:    &pricing.PromotionRepo{DB: db},
		sink:      sink,
		inbox:     sink,
	}
}

// returnURL is where a wallet provider posts its result for provider.
func returnURL(appURL, provider string) string {
	return fmt.Sprintf("%s/api/webhooks/payments?provider=%s", appURL, url.QueryEscape(provider))
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName))
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	var db *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		db, err = postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
	}
	st := openStores(db)
	if n, err := catalog.Seed(ctx, st.catalog, time.Now().UTC()); err != nil {
		logger.Fatal("seed catalog", zap.Error(err))
	} else if n > 0 {
		logger.Info("catalog seeded", zap.Int("services", n))
	}

	// Redis
	var (
		carts cart.Store        = cart.NewMemoryStore()
		idem  httpx.Idempotency = redisx.NewMemoryIdempotency()
	)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		carts = &cart.RedisStore{Redis: rdb}
		idem = &redisx.Idempotency{Redis: rdb}
	} else {
		logger.Warn("REDIS_ADDR not set, carts and idempotency keys are process-local")
	}

	// Notifications: Kafka -> notifier worker, else straight to the sink.
	var (
		dispatcher notify.Dispatcher = notify.SinkDispatcher{Sink: st.sink}
		prod       *kafkax.Producer
	)
	switch {
	case len(cfg.KafkaBrokers) > 0:
		prod = kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024, logger)
		prod.Start(ctx)
		dispatcher = &notify.KafkaDispatcher{Producer: prod, ServiceName: cfg.ServiceName}
	case db == nil:
		dispatcher = notify.LogDispatcher{Log: logger, Next: dispatcher}
	}

	calc := pricing.NewCalculator(st.promos)
	lc := orders.NewLifecycle(st.orders, dispatcher, logger)
	proc := payments.NewProcessor(st.orders, lc, logger,
		payments.CashSettler{},
		payments.NewStripeSettler(cfg.StripeSecretKey, cfg.AppURL, logger),
		payments.NewJazzCashSettler(cfg.JazzCashMerchantID, cfg.JazzCashIntegritySalt, returnURL(cfg.AppURL, "jazzcash")),
		payments.NewEasyPaisaSettler(cfg.EasyPaisaStoreID, cfg.EasyPaisaHashKey, returnURL(cfg.AppURL, "easypaisa")),
	)
	asm := &checkout.Assembler{
		Catalog:   st.catalog,
		Addresses: st.addresses,
		Orders:    st.orders,
		Pricing:   calc,
		Notifier:  dispatcher,
		Log:       logger,
	}

	srvImpl := &httpx.Server{
		Catalog:       st.catalog,
		Carts:         carts,
		Pricing:       calc,
		Addresses:     st.addresses,
		Orders:        st.orders,
		Lifecycle:     lc,
		Checkout:      &checkout.Service{Assembler: asm, Payments: proc, Carts: carts, Log: logger},
		Payments:      proc,
		Webhooks:      payments.WebhookVerifier{StripeSecret: cfg.StripeWebhookSecret, JazzCashSalt: cfg.JazzCashIntegritySalt, EasyPaisaKey: cfg.EasyPaisaHashKey},
		Idempotency:   idem,
		Notifications: st.inbox,
		Tokens:        auth.NewTokens(cfg.JWTSecret),
		Log:           logger,
		Timeout:       cfg.RequestTimeout,
	}

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           http.StripPrefix("/api", srvImpl.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if prod != nil {
		prod.Close() // flush queued notifications
		cancel()
		prod.WaitClosed()
	}
}
