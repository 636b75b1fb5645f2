package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type ChainConfig struct {
	RpcURL             string `mapstructure:"rpc_url" json:"rpc_url"`
	ChainID            int64  `mapstructure:"chain_id" json:"chain_id"`
	Token              string `mapstructure:"token" json:"token"`
	Factory            string `mapstructure:"factory" json:"factory"`
	Resolver           string `mapstructure:"resolver" json:"resolver"`
	EscrowImpl         string `mapstructure:"escrow_impl" json:"escrow_impl"`
	LimitOrderProtocol string `mapstructure:"limit_order_protocol" json:"limit_order_protocol"`
}

type Config struct {
	SourceChain ChainConfig `mapstructure:"source_chain" json:"source_chain"`
	DestChain   ChainConfig `mapstructure:"dest_chain" json:"dest_chain"`

	Resolver struct {
		PrivateKey string `mapstructure:"private_key" json:"private_key,omitempty"`
	} `mapstructure:"resolver" json:"resolver"`

	Swap struct {
		Rate                 string `mapstructure:"rate" json:"rate"`
		SafetyDeposit        string `mapstructure:"safety_deposit" json:"safety_deposit"`
		FinalityDelaySeconds int64  `mapstructure:"finality_delay_seconds" json:"finality_delay_seconds"`
		CallTimeoutSeconds   int64  `mapstructure:"call_timeout_seconds" json:"call_timeout_seconds"`
		GasLimit             uint64 `mapstructure:"gas_limit" json:"gas_limit"`
	} `mapstructure:"swap" json:"swap"`

	Scheduler struct {
		PollIntervalSeconds int64 `mapstructure:"poll_interval_seconds" json:"poll_interval_seconds"`
		RetryDelaySeconds   int64 `mapstructure:"retry_delay_seconds" json:"retry_delay_seconds"`
		RearmFromInterval   bool  `mapstructure:"rearm_from_interval" json:"rearm_from_interval"`
		RearmWindowSeconds  int64 `mapstructure:"rearm_window_seconds" json:"rearm_window_seconds"`
	} `mapstructure:"scheduler" json:"scheduler"`

	Store struct {
		Backend  string `mapstructure:"backend" json:"backend"` // "file" or "redis"
		FilePath string `mapstructure:"file_path" json:"file_path,omitempty"`
		Redis    struct {
			Host     string `mapstructure:"host" json:"host,omitempty"`
			Port     string `mapstructure:"port" json:"port,omitempty"`
			Password string `mapstructure:"password" json:"password,omitempty"`
			DB       int    `mapstructure:"db" json:"db,omitempty"`
		} `mapstructure:"redis" json:"redis,omitempty"`
	} `mapstructure:"store" json:"store"`

	Server struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port int64  `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"server" json:"server"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("DCA_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("swap.rate", "0.9")
	viper.SetDefault("swap.safety_deposit", "0.0001")
	viper.SetDefault("swap.finality_delay_seconds", 15)
	viper.SetDefault("swap.call_timeout_seconds", 30)
	viper.SetDefault("swap.gas_limit", 10_000_000)
	viper.SetDefault("scheduler.poll_interval_seconds", 60)
	viper.SetDefault("scheduler.retry_delay_seconds", 60)
	viper.SetDefault("scheduler.rearm_from_interval", true)
	viper.SetDefault("scheduler.rearm_window_seconds", 60)
	viper.SetDefault("store.backend", "file")
	viper.SetDefault("store.file_path", "dca-data.json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
