package node

import (
	"testing"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/sirupsen/logrus"
)

// Config ...
type Config struct {
	// Address is the host[:port] under which other nodes reach this node. It
	// is the node part of every local identity.
	Address string

	Outbox outbox.Config

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(address string,
	outboxConf outbox.Config,
	logger *logrus.Logger) *Config {

	return &Config{
		Address: address,
		Outbox:  outboxConf,
		Logger:  logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Address: "127.0.0.1:8000",
		Outbox:  outbox.DefaultConfig(),
		Logger:  logger,
	}
}

// TestConfig returns a config whose outbox retries quickly and whose logs go
// through t.
func TestConfig(t testing.TB, address string) *Config {
	config := DefaultConfig()
	config.Address = address
	config.Outbox.RetryInterval = 10 * time.Millisecond
	config.Outbox.MaxRetryInterval = 50 * time.Millisecond
	config.Outbox.PeerRate = 0
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
