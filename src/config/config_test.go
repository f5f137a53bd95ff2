package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()

	conf.SetDataDir("/tmp/nexus")
	assert.Equal(t, filepath.Join("/tmp/nexus", DefaultBadgerFile), conf.DatabaseDir)

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	assert.Equal(t, "/var/db", conf.DatabaseDir)
}

func TestAddress(t *testing.T) {
	conf := NewDefaultConfig()
	assert.Equal(t, DefaultBindAddr, conf.Address())

	conf.AdvertiseAddr = "nexus.example.com:80"
	assert.Equal(t, "nexus.example.com:80", conf.Address())
}

func TestNodeConfig(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	conf.AdvertiseAddr = "x.test:8000"
	conf.RetryInterval = 2 * time.Second
	conf.MaxAttempts = 3

	nc := conf.NodeConfig()

	assert.Equal(t, "x.test:8000", nc.Address)
	assert.Equal(t, 2*time.Second, nc.Outbox.RetryInterval)
	assert.Equal(t, 3, nc.Outbox.MaxAttempts)
	assert.Equal(t, DefaultPeerRate, nc.Outbox.PeerRate)
	assert.NotNil(t, nc.Logger)
}

func TestLogFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "nexus-config")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(dir, "nexus.log")

	conf.Logger().Info("hello")

	data, err := os.ReadFile(conf.LogFile)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file does not contain the entry: %s", data)
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("chatty"))
}
