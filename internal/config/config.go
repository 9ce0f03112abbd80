package config

import "time"

// HouseConfig is the root configuration for an auction house instance.
type HouseConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Listen   ListenConfig   `yaml:"listen"`
	Auction  AuctionConfig  `yaml:"auction"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Bank     BankConfig     `yaml:"bank"`
	Journal  JournalConfig  `yaml:"journal"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this auction house.
type InstanceConfig struct {
	ID            string `yaml:"id"`             // Used when no bank assigns one; generated if empty
	AdvertiseHost string `yaml:"advertise_host"` // Host announced to the bank at registration
}

// ListenConfig holds the agent-facing listener settings.
type ListenConfig struct {
	Address          string        `yaml:"address"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxLineBytes     int           `yaml:"max_line_bytes"`
}

// AuctionConfig holds the inventory and bidding rules.
type AuctionConfig struct {
	InitialItems  int           `yaml:"initial_items"`
	MinimumBid    int64         `yaml:"minimum_bid"`
	BiddingWindow time.Duration `yaml:"bidding_window"`
	Catalog       []string      `yaml:"catalog"`
}

// SweepConfig holds closing sweep settings.
type SweepConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"` // Upper bound between scans
}

// BankConfig holds the settlement service connection.
type BankConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Transport          string        `yaml:"transport"` // "tcp" or "websocket"
	Address            string        `yaml:"address"`   // host:port for tcp, ws:// URL for websocket
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	OutbidRouting      string        `yaml:"outbid_routing"` // "bank", "agent" or "both"
}

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
