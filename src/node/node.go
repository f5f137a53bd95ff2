package node

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/MalekiRe/nexus-social/src/store"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// Node hosts the records of its local users and runs both halves of the
// federation protocol: the acting half, called on behalf of a local user, and
// the receiving half (Receive), called by peer nodes.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	store  store.Store
	trans  net.Transport
	outbox *outbox.Outbox

	runLock  sync.Mutex
	cancel   context.CancelFunc
	runDone  chan struct{}
	shutdown sync.Once

	start    time.Time
	received uint64
	refused  uint64
}

// NewNode is a factory method that returns a Node instance. Deliveries are
// journaled in journal, which is usually the store itself.
func NewNode(conf *Config,
	s store.Store,
	journal outbox.Journal,
	trans net.Transport,
) *Node {
	logger := conf.Logger.WithField("node", conf.Address)

	node := Node{
		conf:   conf,
		logger: logger,
		store:  s,
		trans:  trans,
		outbox: outbox.New(journal, trans, conf.Outbox, logger.WithField("prefix", "outbox")),
		start:  time.Now(),
	}

	return &node
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

// Run retries pending deliveries until the node is shut down.
func (n *Node) Run() {
	n.runLock.Lock()
	if n.getState() != Initialised {
		n.runLock.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.runDone = make(chan struct{})
	n.setState(Running)
	n.runLock.Unlock()

	n.logger.Debug("Run outbox")

	n.outbox.Run(ctx)

	close(n.runDone)
}

// Shutdown stops the outbox and closes the transport and the store.
func (n *Node) Shutdown() {
	n.shutdown.Do(func() {
		n.logger.Info("Shutdown")

		n.runLock.Lock()
		n.setState(Shutdown)
		cancel, done := n.cancel, n.runDone
		n.runLock.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		if err := n.trans.Close(); err != nil {
			n.logger.WithError(err).Error("Closing transport")
		}

		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}

// Flush attempts every pending delivery immediately.
func (n *Node) Flush(ctx context.Context) {
	n.outbox.Flush(ctx)
}

// Address returns the address of the node
func (n *Node) Address() string {
	return n.conf.Address
}

// Identity returns the global identity of a local user.
func (n *Node) Identity(username string) identity.Identity {
	return identity.New(username, n.conf.Address)
}

// Register creates an empty record for a new local user.
func (n *Node) Register(username string) error {
	if err := social.Validate(n.Identity(username)); err != nil {
		return err
	}

	if err := n.store.Register(username); err != nil {
		return err
	}

	n.logger.WithField("user", username).Info("Register")

	return nil
}

// GetUser returns a copy of a local user's record.
func (n *Node) GetUser(username string) (*social.UserRecord, error) {
	return n.store.Get(username)
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	users := "unknown"
	if names, err := n.store.Usernames(); err == nil {
		users = strconv.Itoa(len(names))
	}

	o := n.outbox.Stats()

	s := map[string]string{
		"address":              n.conf.Address,
		"state":                n.getState().String(),
		"users":                users,
		"pending_deliveries":   strconv.Itoa(o.Pending),
		"delivered_deliveries": strconv.FormatUint(o.Delivered, 10),
		"failed_deliveries":    strconv.FormatUint(o.Failed, 10),
		"received_messages":    strconv.FormatUint(atomic.LoadUint64(&n.received), 10),
		"refused_messages":     strconv.FormatUint(atomic.LoadUint64(&n.refused), 10),
		"uptime":               time.Since(n.start).Round(time.Second).String(),
	}

	return s
}

// Receipt reports what happened to the federation push of an acting operation.
// The local change is committed whenever a Receipt is returned, whatever its
// Status: Pending means the push will be retried, Failed means it was given up
// and the peer may never learn about the change.
type Receipt struct {
	// ID is the id of the request or invite the operation acted on.
	ID       string        `json:"id,omitempty"`
	Delivery string        `json:"delivery"`
	Status   outbox.Status `json:"status"`
	Problem  string        `json:"problem,omitempty"`
}

// push hands msg to the outbox. It must be called after the local transaction
// has committed, never from inside a mutator.
func (n *Node) push(ctx context.Context, id string, target identity.Identity, route string, msg interface{}) Receipt {
	r := Receipt{ID: id}

	body, err := jsoniter.Marshal(msg)
	if err != nil {
		r.Status = outbox.Failed
		r.Problem = err.Error()
		return r
	}

	d, status, err := n.outbox.Deliver(ctx, target, route, body)

	r.Delivery = d.ID
	r.Status = status
	if err != nil {
		r.Problem = err.Error()
	}

	n.logger.WithFields(logrus.Fields{
		"target":   target.String(),
		"route":    route,
		"delivery": d.ID,
		"status":   status,
	}).Debug("Push")

	return r
}
