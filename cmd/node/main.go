package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/votebook/params"
	"github.com/uhyunpark/votebook/pkg/api"
	"github.com/uhyunpark/votebook/pkg/app/core/asset"
	"github.com/uhyunpark/votebook/pkg/app/core/exchange"
	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/shares"
	"github.com/uhyunpark/votebook/pkg/app/core/token"
	"github.com/uhyunpark/votebook/pkg/app/core/transaction"
	"github.com/uhyunpark/votebook/pkg/crypto"
	"github.com/uhyunpark/votebook/pkg/events"
	"github.com/uhyunpark/votebook/pkg/storage"
	"github.com/uhyunpark/votebook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	if err := run(cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
}

func run(cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Storage ----
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// ---- State: registry, book, shares, payment token ----
	registry := asset.NewRegistry(store)
	if err := registry.Load(); err != nil {
		return err
	}
	book := orderbook.NewBook(registry)
	if err := book.Load(store); err != nil {
		return err
	}
	shareLedger := shares.NewLedger(registry)
	if err := shareLedger.Load(store); err != nil {
		return err
	}
	payment := token.NewLedger(cfg.Exchange.PaymentSymbol, cfg.Exchange.PaymentDecimals)
	if err := payment.Load(store); err != nil {
		return err
	}
	nonces := transaction.NewNonceStore(store)
	if err := nonces.Load(); err != nil {
		return err
	}

	// ---- Exchange ----
	var server *api.Server
	opts := []exchange.Option{
		exchange.WithStore(store),
		exchange.WithLogger(sugar),
		exchange.WithEventHandler(func(ev exchange.Event) { server.Publish(ev) }),
	}

	var publisher *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, sugar)
		opts = append(opts, exchange.WithEventHandler(publisher.Handle))
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	ex := exchange.New(book, shareLedger, payment.Spender(cfg.Exchange.Custodian), opts...)
	if err := ex.Load(); err != nil {
		return err
	}

	// ---- API ----
	domain := crypto.DefaultDomain()
	domain.ChainID = cfg.Exchange.ChainID
	domain.VerifyingContract = cfg.Exchange.Custodian
	server = api.NewServer(ex, registry, transaction.NewVerifier(domain, nonces), cfg.API.CORSOrigins, sugar)

	if cfg.Node.DevSeed {
		if err := devSeed(ex, registry, shareLedger, payment, sugar); err != nil {
			return err
		}
	}

	sugar.Infow("node_starting",
		"db_path", cfg.Storage.DBPath,
		"assets", registry.Count(),
		"next_bid_id", ex.NextID(orderbook.Bid),
		"next_ask_id", ex.NextID(orderbook.Ask),
		"escrowed", payment.Format(ex.TotalEscrowed()),
		"custodian", cfg.Exchange.Custodian.Hex(),
		"chain_id", cfg.Exchange.ChainID.String(),
		"state_hash", ex.StateHash().Hex())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start HTTP/WebSocket server for frontend
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			sugar.Warnw("kafka_close_failed", "err", err)
		}
	}

	sugar.Infow("node_stopped", "state_hash", ex.StateHash().Hex())
	return nil
}
