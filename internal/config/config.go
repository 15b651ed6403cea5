// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Node       NodeConfig       `mapstructure:"node"`
	Contracts  ContractsConfig  `mapstructure:"contracts"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	PriceRef   PriceRefConfig   `mapstructure:"priceref"`
	Impact     ImpactConfig     `mapstructure:"impact"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// NodeConfig holds blockchain node access and throttling configuration.
type NodeConfig struct {
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	CallsPerSecond int           `mapstructure:"calls_per_second"`
	RetryCeiling   int           `mapstructure:"retry_ceiling"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// ContractsConfig holds protocol contract addresses.
type ContractsConfig struct {
	UniswapV2Router  string `mapstructure:"uniswap_v2_router"`
	UniswapV3Factory string `mapstructure:"uniswap_v3_factory"`
	UniswapV3Quoter  string `mapstructure:"uniswap_v3_quoter"`
	UniswapV4Quoter  string `mapstructure:"uniswap_v4_quoter"`
}

// UniswapV2RouterHex returns the v2 router address as common.Address.
func (c *ContractsConfig) UniswapV2RouterHex() common.Address {
	return common.HexToAddress(c.UniswapV2Router)
}

// UniswapV3FactoryHex returns the v3 factory address as common.Address.
func (c *ContractsConfig) UniswapV3FactoryHex() common.Address {
	return common.HexToAddress(c.UniswapV3Factory)
}

// UniswapV3QuoterHex returns the v3 quoter address as common.Address.
func (c *ContractsConfig) UniswapV3QuoterHex() common.Address {
	return common.HexToAddress(c.UniswapV3Quoter)
}

// UniswapV4QuoterHex returns the v4 quoter address as common.Address.
func (c *ContractsConfig) UniswapV4QuoterHex() common.Address {
	return common.HexToAddress(c.UniswapV4Quoter)
}

// RegistryConfig holds the static pool registry source.
type RegistryConfig struct {
	File string `mapstructure:"file"`
}

// AggregatorConfig holds the external aggregator API settings.
type AggregatorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	FeeBps  float64       `mapstructure:"fee_bps"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PriceRefConfig holds the reference price table settings.
type PriceRefConfig struct {
	LiveURL  string             `mapstructure:"live_url"`
	MaxAge   time.Duration      `mapstructure:"max_age"`
	Fallback map[string]float64 `mapstructure:"fallback"`
	Offline  bool               `mapstructure:"offline"`
}

// ImpactConfig holds price-impact and ranking policy constants.
type ImpactConfig struct {
	LinearBoundaryPct    float64 `mapstructure:"linear_boundary_pct"`
	MaxImpactPct         float64 `mapstructure:"max_impact_pct"`
	AdvantageNoisePct    float64 `mapstructure:"advantage_noise_pct"`
	AdvantageClampPct    float64 `mapstructure:"advantage_clamp_pct"`
	StableFallbackFeeBps float64 `mapstructure:"stable_fallback_fee_bps"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("DQ")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "DQ_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "DQ_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "DQ_LOG_LEVEL", "LOG_LEVEL")

	// Node
	v.BindEnv("node.http_url", "DQ_NODE_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("node.chain_id", "DQ_NODE_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("node.calls_per_second", "DQ_NODE_CALLS_PER_SECOND")

	// Contracts
	v.BindEnv("contracts.uniswap_v2_router", "DQ_UNISWAP_V2_ROUTER")
	v.BindEnv("contracts.uniswap_v3_factory", "DQ_UNISWAP_V3_FACTORY")
	v.BindEnv("contracts.uniswap_v3_quoter", "DQ_UNISWAP_V3_QUOTER")
	v.BindEnv("contracts.uniswap_v4_quoter", "DQ_UNISWAP_V4_QUOTER")

	// Registry
	v.BindEnv("registry.file", "DQ_REGISTRY_FILE")

	// Aggregator
	v.BindEnv("aggregator.base_url", "DQ_AGGREGATOR_URL")
	v.BindEnv("aggregator.api_key", "DQ_AGGREGATOR_API_KEY")

	// Price reference
	v.BindEnv("priceref.live_url", "DQ_PRICEREF_URL")
	v.BindEnv("priceref.offline", "DQ_PRICEREF_OFFLINE")

	// Telemetry
	v.BindEnv("telemetry.enabled", "DQ_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "DQ_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "DQ_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "dex-quotes")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Node defaults: conservative throttle against shared public endpoints
	v.SetDefault("node.chain_id", 1)
	v.SetDefault("node.call_timeout", "8s")
	v.SetDefault("node.calls_per_second", 5)
	v.SetDefault("node.retry_ceiling", 5)
	v.SetDefault("node.initial_backoff", "1s")
	v.SetDefault("node.max_backoff", "16s")

	// Ethereum Mainnet contract defaults
	v.SetDefault("contracts.uniswap_v2_router", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	v.SetDefault("contracts.uniswap_v3_factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("contracts.uniswap_v3_quoter", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("contracts.uniswap_v4_quoter", "0x52F0E24D1c21C8A0cB1e5a5dD6198556BD9E1203")

	// Registry defaults
	v.SetDefault("registry.file", "pools.yaml")

	// Aggregator defaults
	v.SetDefault("aggregator.fee_bps", 3)
	v.SetDefault("aggregator.timeout", "10s")

	// Price reference defaults
	v.SetDefault("priceref.max_age", "5m")

	// Impact policy defaults
	v.SetDefault("impact.linear_boundary_pct", 1.0)
	v.SetDefault("impact.max_impact_pct", 15.0)
	v.SetDefault("impact.advantage_noise_pct", 0.01)
	v.SetDefault("impact.advantage_clamp_pct", 1000.0)
	v.SetDefault("impact.stable_fallback_fee_bps", 5)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "dex-quotes")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Node.HTTPURL == "" {
		return fmt.Errorf("node.http_url is required")
	}
	if c.Node.CallsPerSecond <= 0 {
		return fmt.Errorf("node.calls_per_second must be positive")
	}
	if c.Node.RetryCeiling < 0 {
		return fmt.Errorf("node.retry_ceiling must be non-negative")
	}
	if !common.IsHexAddress(c.Contracts.UniswapV2Router) {
		return fmt.Errorf("invalid contracts.uniswap_v2_router: %s", c.Contracts.UniswapV2Router)
	}
	if !common.IsHexAddress(c.Contracts.UniswapV3Factory) {
		return fmt.Errorf("invalid contracts.uniswap_v3_factory: %s", c.Contracts.UniswapV3Factory)
	}
	if !common.IsHexAddress(c.Contracts.UniswapV3Quoter) {
		return fmt.Errorf("invalid contracts.uniswap_v3_quoter: %s", c.Contracts.UniswapV3Quoter)
	}
	if c.Impact.MaxImpactPct <= 0 || c.Impact.MaxImpactPct > 100 {
		return fmt.Errorf("impact.max_impact_pct out of range: %f", c.Impact.MaxImpactPct)
	}
	return nil
}
