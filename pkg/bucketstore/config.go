package bucketstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/cachetwo/internal/storagefs"
)

// ConfigFileName is the default config file name a [Store] folder may
// carry alongside its bucket files.
const ConfigFileName = ".bucketstore.json"

// Config holds tuning knobs that do not change on-disk semantics. It is
// never required: [Options] configures a Store directly. Config exists
// so an embedder that wants file-based tuning without building its own
// plumbing can load one JSONC file.
type Config struct {
	// InitialReservedSlots overrides Options.InitialReservedSlots when
	// loaded via LoadConfig. Zero means "use the Options default".
	InitialReservedSlots uint64 `json:"initial_reserved_slots,omitempty"` //nolint:tagliatelle

	// KeepBucketWarm mirrors Options.KeepBucketWarm: whether the Store's
	// single open bucket file handle is kept open until the next bucket
	// switch (true) or closed eagerly after every call that touches it
	// (false). Either way, at most one bucket file is ever open at a
	// time. Apply a loaded Config to an Options value with
	// Options.WithConfig before calling Cleared or Continued.
	KeepBucketWarm bool `json:"keep_bucket_warm,omitempty"` //nolint:tagliatelle
}

// LoadConfig reads and parses a JSONC config file at path via fs. A
// missing file is not an error; it returns the zero Config.
func LoadConfig(fs storagefs.FS, path string) (Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("%w: read config %q: %w", ErrIo, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC in %q: %w", ErrInvalidOptions, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse config %q: %w", ErrInvalidOptions, path, err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path atomically: readers never observe a
// partially written file.
func SaveConfig(fs storagefs.FS, path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode config: %w", ErrInvalidOptions, err)
	}

	if err := fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write config %q: %w", ErrIo, path, err)
	}

	return nil
}
