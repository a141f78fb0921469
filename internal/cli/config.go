package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "CARSYNC"
)

// Config keys in config.yaml.
const (
	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeySyncStrategy  = "sync_strategy"
	cfgKeyBatchSize     = "batch_size"
	cfgKeyBatchInterval = "batch_interval"
	cfgKeyStores        = "stores"
	cfgKeyTopologyFile  = "topology_file"
	cfgKeyEnv           = "env"
	cfgKeyHTTPAddr      = "http_addr"
)

// envKeys are the keys that CARSYNC_<KEY> environment variables override.
// data_dir is absent: CARSYNC_DATA_DIR ranks below config.yaml and is
// handled by the paths package.
var envKeys = []string{
	cfgKeyBackend,
	cfgKeySyncStrategy,
	cfgKeyBatchSize,
	cfgKeyBatchInterval,
	cfgKeyTopologyFile,
	cfgKeyEnv,
	cfgKeyHTTPAddr,
}

// defaultConfigFile is written to config.yaml on first run.
var defaultConfigFile = types.Config{
	Backend:      types.BackendSQLite,
	SyncStrategy: types.SyncImmediate,
	Env:          types.EnvProd,
	HTTPAddr:     types.DefaultHTTPAddr,
}

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt)); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// buildConfig assembles the engine configuration. A relative topology
// file is taken relative to the config directory.
func buildConfig(v *viper.Viper, configDir, dataDir string) types.Config {
	topology := v.GetString(cfgKeyTopologyFile)
	if topology != "" && !filepath.IsAbs(topology) {
		topology = filepath.Join(configDir, topology)
	}
	return types.Config{
		Backend:       v.GetString(cfgKeyBackend),
		DataDir:       dataDir,
		SyncStrategy:  v.GetString(cfgKeySyncStrategy),
		BatchSize:     v.GetInt(cfgKeyBatchSize),
		BatchInterval: v.GetInt(cfgKeyBatchInterval),
		Stores:        v.GetStringSlice(cfgKeyStores),
		TopologyFile:  topology,
		Env:           v.GetString(cfgKeyEnv),
		HTTPAddr:      v.GetString(cfgKeyHTTPAddr),
	}
}

// writeConfigIfMissing creates config.yaml with default values if the
// file does not exist. An existing file is left alone.
func writeConfigIfMissing(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&defaultConfigFile)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# carsync configuration. CARSYNC_<KEY> environment variables override these values.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
