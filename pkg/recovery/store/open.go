package store

import (
	"fmt"

	"github.com/spf13/afero"
)

// Supported drivers for Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Options selects and configures a backend for Open.
type Options struct {
	// Driver is one of the Driver* constants. Default: memory.
	Driver string

	// Path is the SQLite database path or the FileStore directory.
	Path string

	// Redis configures the redis driver.
	Redis RedisConfig

	// Fs is the filesystem for the file driver. Default: the OS filesystem.
	Fs afero.Fs
}

// Open creates the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		path := opts.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path)
	case DriverRedis:
		return NewRedisStore(opts.Redis)
	case DriverFile:
		fsys := opts.Fs
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		if opts.Path == "" {
			return nil, fmt.Errorf("file store: path is required")
		}
		return NewFileStore(fsys, opts.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
