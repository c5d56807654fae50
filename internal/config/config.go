package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/runelight-network/runelight/client/bitcoind"
	"github.com/runelight-network/runelight/common"
	"github.com/runelight-network/runelight/pkg/logger"
)

type Config struct {
	Logger      logger.Config   `mapstructure:"logger"`
	BitcoinNode bitcoind.Config `mapstructure:"bitcoin_node"`
	Network     common.Network  `mapstructure:"network"`
	Indexer     IndexerConfig   `mapstructure:"indexer"`
}

type IndexerConfig struct {
	// DataDir is the directory holding the ledger database.
	DataDir string `mapstructure:"data_dir"`
	// PollInterval is the pause between sync rounds once caught up.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

var config *Config

// BindPFlag binds a command-line flag to a configuration key.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("failed to bind flag", "key", key, "error", err)
	}
}

// Parse reads the configuration from the given file (or ./config.yaml when
// empty), environment variables and bound flags.
func Parse(configFile string) Config {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath("./")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	conf := &Config{
		Logger: logger.Config{
			Output: "TEXT",
		},
		Network: common.NetworkMainnet,
		Indexer: IndexerConfig{
			DataDir:      "./data/runes",
			PollInterval: 10 * time.Second,
		},
	}
	if err := viper.ReadInConfig(); err != nil {
		var errNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &errNotFound) {
			logger.Panic("invalid config file", "error", err)
		}
	}
	if err := viper.Unmarshal(conf); err != nil {
		logger.Panic("failed to unmarshal config", "error", err)
	}
	config = conf
	return *config
}

// Load returns the parsed configuration. Parse must have been called.
func Load() Config {
	if config == nil {
		return Parse("")
	}
	return *config
}
