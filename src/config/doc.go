// Package config defines the configuration for a Nexus node.
//
// Regardless of how Nexus is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. The command line also
// looks for an optional config file in the data directory, Config.DataDir:
//
//  nexus.toml // (or .json, .yaml) the same options as the command line flags.
//  badger_db/ // the badger database, when Config.Store is "badger".
package config
