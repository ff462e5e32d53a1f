package settings

import (
	"fmt"
	"sync"
)

// Backend names accepted by Arguments.Backend.
const (
	BackendMongo  = "mongo"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Connection holds the MongoDB connection parameters.
type Connection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Arguments struct {
	// Backend selects the document store: mongo, file or memory
	Backend string `mapstructure:"backend"`

	Connection Connection `mapstructure:"connection"`

	// The file path to the datafiles used by the file backend
	DataDir string `mapstructure:"datadir"`

	// DefinitionsFile is the YAML file holding the collection definitions
	DefinitionsFile string `mapstructure:"definitions"`

	ConfigFile string `mapstructure:"-"`

	LogFile string `mapstructure:"logfile"`

	// Development logging when set
	Debug bool `mapstructure:"debug"`

	Verbose bool `mapstructure:"verbose"`
}

var (
	instance *Arguments
	mu       sync.Mutex
)

// GetSettings returns the process-wide settings, creating them with
// defaults on first use.
func GetSettings() *Arguments {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		defaults := Defaults()
		instance = &defaults
	}
	return instance
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Arguments {
	return Arguments{
		Backend: BackendMongo,
		Connection: Connection{
			Host:     "localhost",
			Port:     27017,
			Database: "sevr",
		},
		DataDir:         "./datafiles",
		DefinitionsFile: "./collections.yaml",
	}
}

// Validate checks the arguments and returns an error if they are unusable.
func Validate(args *Arguments) error {
	validBackends := map[string]bool{BackendMongo: true, BackendFile: true, BackendMemory: true}
	if !validBackends[args.Backend] {
		return fmt.Errorf("invalid backend: %s (must be 'mongo', 'file' or 'memory')", args.Backend)
	}

	if args.Backend == BackendMongo {
		if args.Connection.Port < 1 || args.Connection.Port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", args.Connection.Port)
		}
		if args.Connection.Database == "" {
			return fmt.Errorf("connection database name is required")
		}
	}

	if args.Backend == BackendFile && args.DataDir == "" {
		return fmt.Errorf("data directory is required for the file backend")
	}

	if args.DefinitionsFile == "" {
		return fmt.Errorf("definitions file is required")
	}
	return nil
}
