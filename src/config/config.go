package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/node"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigName is the name, without extension, of the optional config
	// file in the data directory.
	DefaultConfigName = "nexus"
)

// Store types.
const (
	InmemStore  = "inmem"
	BadgerStore = "badger"
	RedisStore  = "redis"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBindAddr         = "127.0.0.1:8000"
	DefaultStore            = InmemStore
	DefaultRedisAddr        = "127.0.0.1:6379"
	DefaultRedisPrefix      = "nexus"
	DefaultTimeout          = 5 * time.Second
	DefaultRetryInterval    = 1 * time.Second
	DefaultMaxRetryInterval = 5 * time.Minute
	DefaultMaxAttempts      = 20
	DefaultPeerRate         = 10.0
)

// Config contains all the configuration properties of a Nexus node.
type Config struct {
	// DataDir is the top-level directory containing Nexus configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the log output.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where the HTTP API listens.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is the address:port under which other nodes reach this
	// node. It is the node part of every local identity, so it must not change
	// once users are registered. Defaults to BindAddr.
	AdvertiseAddr string `mapstructure:"advertise"`

	// Store selects where user records and the outbox live: inmem, badger or
	// redis.
	Store string `mapstructure:"store"`

	// DatabaseDir is the directory containing the badger files.
	DatabaseDir string `mapstructure:"db"`

	// RedisAddr is the address:port of the redis server.
	RedisAddr string `mapstructure:"redis-addr"`

	// RedisPassword ...
	RedisPassword string `mapstructure:"redis-password"`

	// RedisDB ...
	RedisDB int `mapstructure:"redis-db"`

	// RedisPrefix namespaces every key written by this node, so that several
	// nodes can share a redis server.
	RedisPrefix string `mapstructure:"redis-prefix"`

	// Timeout bounds a single federation push.
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryInterval is the delay before the first retry of an undelivered
	// message. It doubles on every attempt up to MaxRetryInterval.
	RetryInterval time.Duration `mapstructure:"retry-interval"`

	// MaxRetryInterval ...
	MaxRetryInterval time.Duration `mapstructure:"max-retry-interval"`

	// MaxAttempts is the number of attempts after which a message is given up.
	MaxAttempts int `mapstructure:"max-attempts"`

	// PeerRate limits the pushes per second sent to any one node. 0 means no
	// limit.
	PeerRate float64 `mapstructure:"peer-rate"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		BindAddr:         DefaultBindAddr,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		RedisAddr:        DefaultRedisAddr,
		RedisPrefix:      DefaultRedisPrefix,
		Timeout:          DefaultTimeout,
		RetryInterval:    DefaultRetryInterval,
		MaxRetryInterval: DefaultMaxRetryInterval,
		MaxAttempts:      DefaultMaxAttempts,
		PeerRate:         DefaultPeerRate,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level Nexus directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Address returns the address advertised to other nodes.
func (c *Config) Address() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.BindAddr
}

// OutboxConfig ...
func (c *Config) OutboxConfig() outbox.Config {
	return outbox.Config{
		RetryInterval:    c.RetryInterval,
		MaxRetryInterval: c.MaxRetryInterval,
		MaxAttempts:      c.MaxAttempts,
		PeerRate:         c.PeerRate,
	}
}

// NodeConfig returns the configuration of the node, sharing the logger of c.
func (c *Config) NodeConfig() *node.Config {
	c.Logger()
	return node.NewConfig(c.Address(), c.OutboxConfig(), c.logger)
}

// Logger returns a formatted logrus Entry, with prefix set to "nexus". If
// LogFile is set, entries are also appended to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "nexus")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Nexus config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Nexus")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Nexus")
		} else {
			return filepath.Join(home, ".nexus")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
