package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the API server configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Makers      MakersConfig      `mapstructure:"makers"`
	Quoting     QuotingConfig     `mapstructure:"quoting"`
	Integrators []Integrator      `mapstructure:"integrators"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	ChainID       int64  `mapstructure:"chain_id"`
	ExchangeProxy string `mapstructure:"exchange_proxy"`
	// TxOrigin is the worker fleet's whitelisted sender address. The API
	// server advertises it to makers and uses it for pre-flight calls
	// without holding a key.
	TxOrigin         string        `mapstructure:"tx_origin"`
	WorkerPrivateKey string        `mapstructure:"worker_private_key"`
	GasLimit         uint64        `mapstructure:"gas_limit"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// MakersConfig contains market maker endpoint settings
type MakersConfig struct {
	URIs            []string      `mapstructure:"uris"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	LastLookTimeout time.Duration `mapstructure:"last_look_timeout"`
}

// QuotingConfig contains quote selection and submission window settings
type QuotingConfig struct {
	// MinExpiryWindow is the minimum time a quote must remain valid to be
	// offered to a taker.
	MinExpiryWindow time.Duration `mapstructure:"min_expiry_window"`
	// MinSubmitWindow is the minimum time an order must have before expiry
	// for a signed submission to be accepted.
	MinSubmitWindow time.Duration `mapstructure:"min_submit_window"`
	// FeeToken is the token fees are charged in, typically the wrapped
	// native asset.
	FeeToken string `mapstructure:"fee_token"`
	// FeeGasEstimate is the gas amount used to price the per-fill fee.
	FeeGasEstimate uint64 `mapstructure:"fee_gas_estimate"`
}

// Integrator identifies an API consumer and its key
type Integrator struct {
	ID     string `mapstructure:"id"`
	APIKey string `mapstructure:"api_key"`
}

// WorkerConfig contains transaction worker settings
type WorkerConfig struct {
	Index             int           `mapstructure:"index"`
	PollingInterval   time.Duration `mapstructure:"polling_interval"`
	WatchInterval     time.Duration `mapstructure:"watch_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MinBalanceWei     string        `mapstructure:"min_balance_wei"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// WorkerProcessConfig represents the worker process configuration
type WorkerProcessConfig struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Makers     MakersConfig     `mapstructure:"makers"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Load loads API server configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadWorker loads worker process configuration from file
func LoadWorker(configPath string) (*WorkerProcessConfig, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setWorkerDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config WorkerProcessConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateWorker(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")

	// Ethereum defaults
	viper.SetDefault("ethereum.gas_limit", 500000)
	viper.SetDefault("ethereum.request_timeout", "10s")

	// Maker defaults
	viper.SetDefault("makers.request_timeout", "1500ms")
	viper.SetDefault("makers.last_look_timeout", "2s")

	// Quoting defaults
	viper.SetDefault("quoting.min_expiry_window", "1m")
	viper.SetDefault("quoting.min_submit_window", "45s")
	viper.SetDefault("quoting.fee_gas_estimate", 200000)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func setWorkerDefaults() {
	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")

	// Ethereum defaults
	viper.SetDefault("ethereum.gas_limit", 500000)
	viper.SetDefault("ethereum.request_timeout", "10s")

	// Maker defaults
	viper.SetDefault("makers.request_timeout", "1500ms")
	viper.SetDefault("makers.last_look_timeout", "2s")

	// Worker defaults
	viper.SetDefault("worker.index", 0)
	viper.SetDefault("worker.polling_interval", "5s")
	viper.SetDefault("worker.watch_interval", "15s")
	viper.SetDefault("worker.heartbeat_interval", "30s")
	viper.SetDefault("worker.min_balance_wei", "100000000000000000")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9091)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.Ethereum.ExchangeProxy == "" {
		return fmt.Errorf("ethereum.exchange_proxy is required")
	}
	if config.Ethereum.TxOrigin == "" {
		return fmt.Errorf("ethereum.tx_origin is required")
	}
	if len(config.Makers.URIs) == 0 {
		return fmt.Errorf("makers.uris is required")
	}
	if config.Quoting.FeeToken == "" {
		return fmt.Errorf("quoting.fee_token is required")
	}
	return nil
}

func validateWorker(config *WorkerProcessConfig) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.Ethereum.ExchangeProxy == "" {
		return fmt.Errorf("ethereum.exchange_proxy is required")
	}
	if config.Ethereum.WorkerPrivateKey == "" {
		return fmt.Errorf("ethereum.worker_private_key is required")
	}
	if config.Worker.Index < 0 {
		return fmt.Errorf("worker.index must not be negative")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
