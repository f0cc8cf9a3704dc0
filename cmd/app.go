package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/fee"
	"github.com/frahmantamala/pocket-settlement/internal/notify"
	"github.com/frahmantamala/pocket-settlement/internal/payee"
	payeestore "github.com/frahmantamala/pocket-settlement/internal/payee/postgres"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	paymentstore "github.com/frahmantamala/pocket-settlement/internal/payment/postgres"
	"github.com/frahmantamala/pocket-settlement/internal/payout"
	payoutstore "github.com/frahmantamala/pocket-settlement/internal/payout/postgres"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/worker"
	"github.com/frahmantamala/pocket-settlement/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// App holds everything the commands share: stores, the processor gateway,
// the relocation pool and the services built on them.
type App struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Logger   *slog.Logger
	Gateway  processor.Gateway
	Pool     *worker.Pool
	Bus      *events.EventBus
	Notifier *notify.BalanceNotifier

	Payees     *payee.Service
	Payments   *payment.PaymentService
	Settlement *payment.Settlement
	Sweeper    *payment.Sweeper
	Payouts    *payout.Service
}

func setupLogger(config *internal.Config) *slog.Logger {
	return logger.Setup(logger.Options{
		Env:    config.Env,
		Level:  config.Observability.Logging.Level,
		Format: config.Observability.Logging.Format,
	})
}

func newApp(config *internal.Config) (*App, error) {
	lg := setupLogger(config)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	rates, err := fee.RatesFromConfig(config.Fees)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid fee configuration: %w", err)
	}
	fees := fee.NewCalculator(rates)

	gateway := newGateway(config.Processor, lg)

	pool := worker.NewPool(worker.Config{
		MaxWorkers:   config.Settlement.MaxWorkers,
		JobQueueSize: config.Settlement.JobQueueSize,
	}, lg)

	bus := events.NewEventBus(lg)

	payees := payee.NewService(payeestore.NewPayeeRepository(db), gateway, lg)

	notifier := notify.NewBalanceNotifier(
		notify.NewKafkaWriter(config.Kafka.Brokers, config.Kafka.BalanceTopic), payees, lg)
	notifier.Register(bus)

	transactions := paymentstore.NewTransactionRepository(gdb)

	payments := payment.NewPaymentService(transactions, payees, gateway, fees, bus,
		payment.ServiceConfig{UseOrderPocket: config.Processor.UseOrderPocket}, lg)

	relocator := payment.NewRelocator(transactions, payees, gateway, bus, payment.RelocatorConfig{
		PlatformSdRef: config.Processor.PlatformSdRef,
		BusyErrorCode: config.Processor.BusyErrorCode,
		Delay:         config.Settlement.RelocationDelay,
		RetryDelay:    config.Settlement.RelocationRetryDelay,
	}, lg)

	settlement := payment.NewSettlement(transactions, payees, relocator, pool, bus, payment.SettlementConfig{
		PlatformSdRef: config.Processor.PlatformSdRef,
		StaleClaimAge: config.Settlement.StaleClaimAge,
	}, lg)

	payouts := payout.NewService(payoutstore.NewPayoutRepository(gdb), payees, gateway, fees, bus, lg)
	settlement.SetPayoutHandler(payouts)

	sweeper := payment.NewSweeper(transactions, settlement, gateway, payment.SweeperConfig{
		Interval:        config.Settlement.SweepInterval,
		MinAge:          config.Settlement.SweepMinAge,
		ReconcileMinAge: config.Settlement.ReconcileMinAge,
		BatchSize:       config.Settlement.SweepBatch,
	}, lg)

	return &App{
		Config:     config,
		DB:         db,
		Gorm:       gdb,
		Logger:     lg,
		Gateway:    gateway,
		Pool:       pool,
		Bus:        bus,
		Notifier:   notifier,
		Payees:     payees,
		Payments:   payments,
		Settlement: settlement,
		Sweeper:    sweeper,
		Payouts:    payouts,
	}, nil
}

// Close drains relocations, then event deliveries, before the stores go away.
func (a *App) Close(ctx context.Context) {
	if err := a.Pool.Shutdown(ctx); err != nil {
		a.Logger.Error("worker pool shutdown error", "error", err)
	}
	if err := a.Bus.Drain(ctx); err != nil {
		a.Logger.Warn("event deliveries still running at shutdown", "error", err)
	}
	if err := a.Notifier.Close(); err != nil {
		a.Logger.Error("balance notifier close error", "error", err)
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

func newGateway(cfg internal.ProcessorConfig, lg *slog.Logger) processor.Gateway {
	if cfg.Mode == internal.ProcessorModeStub {
		lg.Warn("using in-memory processor stub, no money moves")
		return processor.NewStub(lg)
	}
	return processor.NewClient(processor.Config{
		BaseURL:    cfg.BaseURL,
		Sector:     cfg.Sector,
		Password:   cfg.Password,
		Currency:   cfg.Currency,
		Timeout:    cfg.Timeout,
		SuccessURL: cfg.SuccessURL,
		FailURL:    cfg.FailURL,
		NotifyURL:  cfg.NotifyURL,
	}, lg)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}
