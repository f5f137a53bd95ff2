// Package nexus assembles a complete node from a config.Config: the store, the
// HTTP transport, the node and the HTTP service.
package nexus

import (
	"context"
	"fmt"
	"time"

	"github.com/MalekiRe/nexus-social/src/config"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/node"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/service"
	"github.com/MalekiRe/nexus-social/src/store"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Backend is a user store that also journals the outbox. Every store in the
// store package is one.
type Backend interface {
	store.Store
	outbox.Journal
}

// Nexus is the engine of a node.
type Nexus struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     Backend
	Service   *service.Service
	logger    *logrus.Entry
}

// NewNexus ...
func NewNexus(c *config.Config) *Nexus {
	engine := &Nexus{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

func (n *Nexus) initStore() error {
	switch n.Config.Store {
	case config.InmemStore, "":
		n.Store = store.NewInmemStore()

		n.logger.Debug("created new in-mem store")
	case config.BadgerStore:
		n.logger.WithField("path", n.Config.DatabaseDir).Debug("Attempting to load or create database")

		s, err := store.NewBadgerStore(n.Config.DatabaseDir, n.logger.WithField("prefix", "badger"))
		if err != nil {
			return err
		}

		n.logger.WithField("path", s.StorePath()).Info("Opened badger store")

		n.Store = s
	case config.RedisStore:
		n.logger.WithField("addr", n.Config.RedisAddr).Debug("Connecting to redis")

		s, err := store.NewRedisStore(&redis.Options{
			Addr:     n.Config.RedisAddr,
			Password: n.Config.RedisPassword,
			DB:       n.Config.RedisDB,
		}, n.Config.RedisPrefix, n.logger.WithField("prefix", "redis"))
		if err != nil {
			return err
		}

		n.Store = s
	default:
		return fmt.Errorf("unknown store %q", n.Config.Store)
	}

	return nil
}

func (n *Nexus) initTransport() error {
	n.Transport = net.NewHTTPTransport(
		n.Config.Timeout,
		n.logger.WithField("prefix", "transport"),
	)

	return nil
}

func (n *Nexus) initNode() error {
	n.logger.WithFields(logrus.Fields{
		"address": n.Config.Address(),
		"store":   n.Config.Store,
	}).Debug("NODE")

	n.Node = node.NewNode(
		n.Config.NodeConfig(),
		n.Store,
		n.Store,
		n.Transport,
	)

	return nil
}

func (n *Nexus) initService() error {
	n.Service = service.NewService(
		n.Config.BindAddr,
		n.Node,
		n.logger.WithField("prefix", "service"),
	)

	return nil
}

// Init builds every component. It must be called before Run.
func (n *Nexus) Init() error {
	if err := n.initStore(); err != nil {
		return err
	}

	if err := n.initTransport(); err != nil {
		return err
	}

	if err := n.initNode(); err != nil {
		return err
	}

	if err := n.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the outbox and serves the API. It blocks until the service stops.
func (n *Nexus) Run() error {
	n.Node.RunAsync()

	return n.Service.Serve()
}

// Shutdown stops the service, giving in-flight requests until timeout to
// complete, then shuts the node down.
func (n *Nexus) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := n.Service.Shutdown(ctx); err != nil {
		n.logger.WithError(err).Error("Shutting down service")
	}

	n.Node.Shutdown()
}
