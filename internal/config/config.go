// Package config loads daemon configuration the usual way: defaults,
// then an optional TOML file, then TOKILITYD_ environment variables.
package config

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Log         LogConfig         `mapstructure:"log"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
}

// ServerConfig configures the JSON API listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Timeouts in seconds.
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// StorageConfig locates the persistent stores.
type StorageConfig struct {
	// DataDir holds the pebble ledger store.
	DataDir string `mapstructure:"data_dir"`

	// TradeLog is the sqlite submission history path. Empty disables it.
	TradeLog string `mapstructure:"trade_log"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MarketplaceConfig holds marketplace deployment parameters.
type MarketplaceConfig struct {
	// PlatformFeeAddress receives the platform fee of every second-hand
	// sale and gift. Required to deploy; existing deployments carry it in
	// app state.
	PlatformFeeAddress string `mapstructure:"platform_fee_address"`
}
