package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MalekiRe/nexus-social/src/config"
	"github.com/MalekiRe/nexus-social/src/nexus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// shutdownTimeout is how long in-flight requests get to complete on SIGINT.
const shutdownTimeout = 10 * time.Second

//NewRunCmd returns the command that starts a Nexus node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNexus,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNexus(cmd *cobra.Command, args []string) error {
	engine := nexus.NewNexus(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run()
	}()

	select {
	case <-sigCh:
		_config.Logger().Info("Received an interrupt, stopping")
		engine.Shutdown(shutdownTimeout)
		return <-errCh
	case err := <-errCh:
		engine.Shutdown(shutdownTimeout)
		return err
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the HTTP API")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Host:Port under which other nodes reach this node")
	cmd.Flags().DurationP("timeout", "t", _config.Timeout, "Timeout of federation pushes")

	// Store
	cmd.Flags().String("store", _config.Store, "inmem, badger or redis")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().String("redis-addr", _config.RedisAddr, "IP:Port of the redis server")
	cmd.Flags().String("redis-password", _config.RedisPassword, "Password of the redis server")
	cmd.Flags().Int("redis-db", _config.RedisDB, "Redis database number")
	cmd.Flags().String("redis-prefix", _config.RedisPrefix, "Prefix of the redis keys")

	// Outbox
	cmd.Flags().Duration("retry-interval", _config.RetryInterval, "Delay before the first retry of an undelivered message")
	cmd.Flags().Duration("max-retry-interval", _config.MaxRetryInterval, "Max delay between retries")
	cmd.Flags().Int("max-attempts", _config.MaxAttempts, "Attempts after which a message is dropped")
	cmd.Flags().Float64("peer-rate", _config.PeerRate, "Max pushes per second to one node, 0 for no limit")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"nexus.DataDir":       _config.DataDir,
		"nexus.BindAddr":      _config.BindAddr,
		"nexus.AdvertiseAddr": _config.AdvertiseAddr,
		"nexus.Store":         _config.Store,
		"nexus.LogLevel":      _config.LogLevel,
		"nexus.Timeout":       _config.Timeout,
		"nexus.RetryInterval": _config.RetryInterval,
		"nexus.MaxAttempts":   _config.MaxAttempts,
		"nexus.PeerRate":      _config.PeerRate,
	}

	switch _config.Store {
	case config.BadgerStore:
		logFields["nexus.DatabaseDir"] = _config.DatabaseDir
	case config.RedisStore:
		logFields["nexus.RedisAddr"] = _config.RedisAddr
		logFields["nexus.RedisPrefix"] = _config.RedisPrefix
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/nexus.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName) // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir)          // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
