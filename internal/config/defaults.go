package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddress      = ":7000"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMaxLineBytes       = 4096
	DefaultInitialItems       = 3
	DefaultMinimumBid         = 10
	DefaultBiddingWindow      = 30 * time.Second
	DefaultReconcileInterval  = 500 * time.Millisecond
	DefaultBankTransport      = "tcp"
	DefaultBankDialTimeout    = 10 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultOutbidRouting      = "both"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 100
	DefaultFlushInterval      = 1 * time.Second
	DefaultHealthPort         = 8080
	DefaultLogLevel           = "info"
)

// DefaultCatalog is the set of names replacement items are drawn from.
var DefaultCatalog = []string{
	"Table", "Chair", "Car", "Computer", "Bed", "TV", "PlayStation",
	"Washing Machine", "Watch", "Piano", "Camera", "Xbox",
}

// ApplyDefaults fills every unset optional field.
func (c *HouseConfig) ApplyDefaults() {
	// Listener defaults
	if c.Listen.Address == "" {
		c.Listen.Address = DefaultListenAddress
	}
	if c.Listen.HandshakeTimeout == 0 {
		c.Listen.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Listen.WriteTimeout == 0 {
		c.Listen.WriteTimeout = DefaultWriteTimeout
	}
	if c.Listen.MaxLineBytes == 0 {
		c.Listen.MaxLineBytes = DefaultMaxLineBytes
	}

	// Auction defaults
	if c.Auction.InitialItems == 0 {
		c.Auction.InitialItems = DefaultInitialItems
	}
	if c.Auction.MinimumBid == 0 {
		c.Auction.MinimumBid = DefaultMinimumBid
	}
	if c.Auction.BiddingWindow == 0 {
		c.Auction.BiddingWindow = DefaultBiddingWindow
	}
	if len(c.Auction.Catalog) == 0 {
		c.Auction.Catalog = append([]string(nil), DefaultCatalog...)
	}

	// Sweep defaults
	if c.Sweep.ReconcileInterval == 0 {
		c.Sweep.ReconcileInterval = DefaultReconcileInterval
	}

	// Bank defaults
	if c.Bank.Transport == "" {
		c.Bank.Transport = DefaultBankTransport
	}
	if c.Bank.DialTimeout == 0 {
		c.Bank.DialTimeout = DefaultBankDialTimeout
	}
	if c.Bank.WriteTimeout == 0 {
		c.Bank.WriteTimeout = DefaultWriteTimeout
	}
	if c.Bank.ReconnectBaseDelay == 0 {
		c.Bank.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Bank.ReconnectMaxDelay == 0 {
		c.Bank.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Bank.OutbidRouting == "" {
		c.Bank.OutbidRouting = DefaultOutbidRouting
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
