package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Formance  FormanceConfig  `yaml:"formance"`
	Lock      LockConfig      `yaml:"lock"`
	Stellar   StellarConfig   `yaml:"stellar"`
	Queue     QueueConfig     `yaml:"queue"`
	Relay     RelayConfig     `yaml:"relay"`
	Server    ServerConfig    `yaml:"server"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string        `yaml:"path"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	CreateDummyUsers bool          `yaml:"create_dummy_users"`
}

// LedgerConfig selects the balance ledger backend ("sqlite" or "formance")
type LedgerConfig struct {
	Backend string `yaml:"backend"`
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string `yaml:"stack_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	LedgerName   string `yaml:"ledger_name"`
}

// LockConfig holds the payment lock backend and its retry policy
type LockConfig struct {
	Backend       string        `yaml:"backend"`
	PostgresURL   string        `yaml:"postgres_url"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
}

// StellarConfig holds Horizon and custodian account settings
type StellarConfig struct {
	HorizonEndpoint   string        `yaml:"horizon_endpoint"`
	NetworkPassphrase string        `yaml:"network_passphrase"`
	CustodianSecret   string        `yaml:"-"`
	AccountId         string        `yaml:"account_id"`
	PaymentTimeout    time.Duration `yaml:"payment_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// QueueConfig holds AMQP settings shared by the relay and the deposit applier
type QueueConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxBatchBytes int    `yaml:"max_batch_bytes"`
	Prefetch      int    `yaml:"prefetch"`
}

// RelayConfig holds payment stream relay settings
type RelayConfig struct {
	Cursor           string        `yaml:"cursor"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	DryRun           bool          `yaml:"dry_run"`
	HttpAddr         string        `yaml:"http_addr"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	HttpAddr        string        `yaml:"http_addr"`
	ApiKeySalt      string        `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ReconcileConfig holds reservation sweep settings
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
	Grace    time.Duration `yaml:"grace"`
}
