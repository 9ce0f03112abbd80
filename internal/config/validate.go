package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *HouseConfig) Validate() error {
	if c.Listen.Address == "" {
		return errors.New("listen.address is required")
	}
	if c.Listen.MaxLineBytes < 64 {
		return fmt.Errorf("listen.max_line_bytes must be >= 64, got %d", c.Listen.MaxLineBytes)
	}

	if c.Auction.InitialItems < 1 {
		return errors.New("auction.initial_items must be >= 1")
	}
	if c.Auction.MinimumBid < 0 {
		return errors.New("auction.minimum_bid must be >= 0")
	}
	if c.Auction.BiddingWindow <= 0 {
		return errors.New("auction.bidding_window must be > 0")
	}
	for i, name := range c.Auction.Catalog {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("auction.catalog[%d] is empty", i)
		}
	}

	if c.Sweep.ReconcileInterval <= 0 {
		return errors.New("sweep.reconcile_interval must be > 0")
	}

	switch c.Bank.OutbidRouting {
	case "agent", "both":
	case "bank":
		if !c.Bank.Enabled {
			return errors.New("bank.outbid_routing bank requires bank.enabled")
		}
	default:
		return fmt.Errorf("bank.outbid_routing must be bank, agent or both, got %q", c.Bank.OutbidRouting)
	}

	if c.Bank.Enabled {
		if err := c.Bank.validate(); err != nil {
			return err
		}
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (b *BankConfig) validate() error {
	if b.Address == "" {
		return errors.New("bank.address is required when bank.enabled is true")
	}
	switch b.Transport {
	case "tcp", "websocket":
	default:
		return fmt.Errorf("bank.transport must be tcp or websocket, got %q", b.Transport)
	}
	if b.ReconnectBaseDelay > b.ReconnectMaxDelay {
		return fmt.Errorf("bank.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			b.ReconnectBaseDelay, b.ReconnectMaxDelay)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", level)
}
