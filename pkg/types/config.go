package types

import "errors"

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SyncStrategy controls when the SQLite backend flushes JSONL files:
	// immediate (default), on_close, or batch.
	SyncStrategy string `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty"`
	// BatchSize is the number of queued writes that triggers a batch flush.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	// BatchInterval is the flush interval in seconds for the batch strategy.
	BatchInterval int `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty"`

	// Stores overrides the set of store names. Empty means DefaultStoreNames.
	Stores []string `json:"stores,omitempty" yaml:"stores,omitempty"`
	// TopologyFile points at a YAML link document that replaces the
	// built-in topology. Empty means the built-in one.
	TopologyFile string `json:"topology_file,omitempty" yaml:"topology_file,omitempty"`

	// Env selects the logging profile: local, dev, or prod.
	Env string `json:"env,omitempty" yaml:"env,omitempty"`
	// HTTPAddr is the listen address for the HTTP facade.
	HTTPAddr string `json:"http_addr,omitempty" yaml:"http_addr,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Sync strategies for JSONL persistence.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Logging environments.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Defaults applied by the getters when a field is unset.
const (
	DefaultBatchSize     = 10
	DefaultBatchInterval = 5
	DefaultHTTPAddr      = ":7070"
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
	ErrEnvUnknown           = errors.New("unknown environment")
	ErrStoreNameInvalid     = errors.New("store name must not be empty or duplicated")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMemory: true,
}

var knownStrategies = map[string]bool{
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
}

var knownEnvs = map[string]bool{
	EnvLocal: true,
	EnvDev:   true,
	EnvProd:  true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.SyncStrategy != "" && !knownStrategies[c.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if c.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if c.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	if c.Env != "" && !knownEnvs[c.Env] {
		return ErrEnvUnknown
	}
	seen := make(map[string]bool, len(c.Stores))
	for _, name := range c.Stores {
		if name == "" || seen[name] || IsCollectionName(name) {
			return ErrStoreNameInvalid
		}
		seen[name] = true
	}
	return nil
}

// GetSyncStrategy returns the effective sync strategy.
func (c Config) GetSyncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetBatchSize returns the effective batch size.
func (c Config) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetBatchInterval returns the effective batch interval in seconds.
func (c Config) GetBatchInterval() int {
	if c.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return c.BatchInterval
}

// GetStores returns the configured store names, or DefaultStoreNames.
func (c Config) GetStores() []string {
	if len(c.Stores) == 0 {
		out := make([]string, len(DefaultStoreNames))
		copy(out, DefaultStoreNames)
		return out
	}
	out := make([]string, len(c.Stores))
	copy(out, c.Stores)
	return out
}

// GetEnv returns the effective logging environment.
func (c Config) GetEnv() string {
	if c.Env == "" {
		return EnvProd
	}
	return c.Env
}

// GetHTTPAddr returns the effective HTTP listen address.
func (c Config) GetHTTPAddr() string {
	if c.HTTPAddr == "" {
		return DefaultHTTPAddr
	}
	return c.HTTPAddr
}
