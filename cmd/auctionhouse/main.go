package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/auction-house/internal/agent"
	"github.com/rickgao/auction-house/internal/auction"
	"github.com/rickgao/auction-house/internal/bank"
	"github.com/rickgao/auction-house/internal/clock"
	"github.com/rickgao/auction-house/internal/config"
	"github.com/rickgao/auction-house/internal/database"
	"github.com/rickgao/auction-house/internal/journal"
	"github.com/rickgao/auction-house/internal/server"
	"github.com/rickgao/auction-house/internal/sweep"
	"github.com/rickgao/auction-house/internal/version"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/auctionhouse.yaml", "path to config file")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting auction house",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("auction house failed", "error", err)
		os.Exit(1)
	}
	logger.Info("auction house stopped")
}

func run(cfg *config.HouseConfig, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	ln, err := net.Listen("tcp", cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen.Address, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	// Bank registration assigns the house id.
	houseID := cfg.Instance.ID
	var ch bank.Channel = bank.Discard{}
	var outbox *bank.Outbox
	if cfg.Bank.Enabled {
		bankCfg := bankConfig(cfg.Bank)
		transport, err := bank.NewTransport(bankCfg)
		if err != nil {
			ln.Close()
			return fmt.Errorf("bank transport: %w", err)
		}

		host := advertiseHost(cfg.Instance.AdvertiseHost)
		logger.Info("registering with bank",
			"address", cfg.Bank.Address,
			"transport", bankCfg.Transport,
			"advertise", fmt.Sprintf("%s:%d", host, port),
		)

		regCtx, regCancel := context.WithTimeout(ctx, 2*cfg.Bank.DialTimeout)
		houseID, err = bank.Register(regCtx, transport, host, port)
		regCancel()
		if err != nil {
			ln.Close()
			return err
		}

		outbox = bank.NewOutbox(transport, bankCfg, logger.With("component", "bank"))
		ch = outbox
	}
	if houseID == "" {
		houseID = uuid.NewString()
	}
	logger.Info("house id assigned", "house_id", houseID, "bank", cfg.Bank.Enabled)

	// Core
	house := auction.NewHouse(auctionConfig(cfg.Auction), clock.Real(), logger.With("component", "auction"))
	agents := agent.NewRegistry()

	sweeper := sweep.New(sweep.Config{
		HouseID:           houseID,
		ReconcileInterval: cfg.Sweep.ReconcileInterval,
	}, house, agents, ch, clock.Real(), logger.With("component", "sweep"))
	house.SetScheduler(sweeper)

	// Journal
	var pool *pgxpool.Pool
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		db := cfg.Journal.Database
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err = database.Connect(ctx, db)
		if err != nil {
			ln.Close()
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			ln.Close()
			return err
		}

		writer = journal.NewWriter(journal.Config{
			HouseID:       houseID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, logger.With("component", "journal"))
		house.SetRecorder(writer)
		sweeper.SetRecorder(writer)

		if err := writer.Start(context.Background()); err != nil {
			ln.Close()
			return fmt.Errorf("start journal: %w", err)
		}
	}

	srv, err := server.New(server.Config{
		HouseID:          houseID,
		HandshakeTimeout: cfg.Listen.HandshakeTimeout,
		WriteTimeout:     cfg.Listen.WriteTimeout,
		MaxLineBytes:     cfg.Listen.MaxLineBytes,
		OutbidRouting:    cfg.Bank.OutbidRouting,
	}, house, agents, ch, logger.With("component", "server"))
	if err != nil {
		ln.Close()
		return err
	}

	// Health server
	health := &healthHandler{
		houseID: houseID,
		house:   house,
		agents:  agents,
		server:  srv,
		sweeper: sweeper,
		outbox:  outbox,
		journal: writer,
	}
	if pool != nil {
		health.db = pool
	}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           health.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	// The outbox outlives the agent side so that exit notices and the
	// last settlements still reach the bank.
	outboxCtx, cancelOutbox := context.WithCancel(context.Background())
	defer cancelOutbox()
	var delivery errgroup.Group
	if outbox != nil {
		delivery.Go(func() error { return outbox.Run(outboxCtx) })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })
	g.Go(func() error { return sweeper.Run(gctx) })

	logger.Info("auction house running",
		"house_id", houseID,
		"listen", ln.Addr().String(),
		"items", len(house.List()),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	runErr := g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if outbox != nil {
		outbox.Close()
		done := make(chan struct{})
		go func() {
			delivery.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("bank outbox did not drain in time", "pending", outbox.Pending())
			cancelOutbox()
			<-done
		}
	}

	if writer != nil {
		writer.Stop(shutdownCtx)
	}

	healthServer.Shutdown(shutdownCtx)

	return runErr
}

func auctionConfig(c config.AuctionConfig) auction.Config {
	return auction.Config{
		InitialItems:  c.InitialItems,
		MinimumBid:    c.MinimumBid,
		BiddingWindow: c.BiddingWindow,
		Catalog:       c.Catalog,
	}
}

func bankConfig(c config.BankConfig) bank.Config {
	return bank.Config{
		Transport:          c.Transport,
		Address:            c.Address,
		DialTimeout:        c.DialTimeout,
		WriteTimeout:       c.WriteTimeout,
		ReconnectBaseDelay: c.ReconnectBaseDelay,
		ReconnectMaxDelay:  c.ReconnectMaxDelay,
	}
}

// advertiseHost returns the configured host, or the machine's hostname.
func advertiseHost(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
