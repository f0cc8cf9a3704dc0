package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/payee"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/payout"
	"github.com/frahmantamala/pocket-settlement/internal/transport"
	"github.com/frahmantamala/pocket-settlement/internal/transport/rest"
	"github.com/frahmantamala/pocket-settlement/internal/transport/swagger"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server with the payment API, the processor callback and the settlement sweeper`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := app.Logger

	if _, err := swagger.LoadSpec(context.Background(), config.Server.OpenAPIPath); err != nil {
		lg.Error("openapi document failed to load", "path", config.Server.OpenAPIPath, "error", err)
		app.Close(context.Background())
		os.Exit(1)
	}

	router := chi.NewRouter()
	base := transport.NewBaseHandler(lg)
	rest.RegisterAllRoutes(router, app.DB.DB, rest.Handlers{
		Payment: payment.NewHandler(app.Payments, lg),
		Webhook: payment.NewWebhookHandler(base, app.Settlement, config.Processor.Password, lg),
		Payout:  payout.NewHandler(app.Payouts, lg),
		Payee:   payee.NewHandler(app.Payees, lg),
		Queue:   app.Pool,
	}, rest.RouterConfig{
		AllowedOrigins: config.Server.AllowedOrigins,
		OpenAPIPath:    config.Server.OpenAPIPath,
	}, lg)

	addr := fmt.Sprintf(":%d", config.Server.Port)
	lg.Info("Starting HTTP server", "address", addr, "processor_mode", config.Processor.Mode)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: config.Server.ReadHeaderTimeout,
		ReadTimeout:       config.Server.ReadTimeout,
		WriteTimeout:      config.Server.WriteTimeout,
		IdleTimeout:       config.Server.IdleTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go app.Sweeper.Run(sweepCtx)

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Error("Server shutdown error", "error", err)
	}
	// queued relocations release their claims; the sweeper picks them up
	// after restart
	app.Close(ctx)

	lg.Info("Server stopped")
}
