// Package outbox delivers federation messages to peer nodes and keeps retrying
// the ones that could not be delivered.
//
// Every message is journaled before the first attempt. The first attempt is
// made synchronously by Deliver, so the caller learns immediately whether the
// peer recorded the change. Failed deliveries stay in the journal and are
// retried by Run with exponential backoff until they succeed, the peer refuses
// them, or MaxAttempts is reached. Retries are paced per target node so that a
// node coming back online is not flooded.
//
// Deliveries to the same node arrive in the order they were created. A new
// message for a node that still has undelivered messages is journaled behind
// them and left for Run or Flush.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrQueued is the cause given for a Pending delivery that was not attempted
// because older deliveries to the same node are still in the journal.
var ErrQueued = errors.New("queued behind an earlier delivery to the same node")

// Status is the outcome of a delivery attempt.
type Status int

const (
	// Delivered means the peer accepted the message.
	Delivered Status = iota
	// Pending means the message is journaled and will be retried.
	Pending
	// Failed means the message was dropped.
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "Delivered"
	case Pending:
		return "Pending"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText ...
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText ...
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Delivered":
		*s = Delivered
	case "Pending":
		*s = Pending
	case "Failed":
		*s = Failed
	default:
		return fmt.Errorf("unknown delivery status %q", text)
	}
	return nil
}

// Config controls retries.
type Config struct {
	// RetryInterval is the delay before the first retry. It doubles after each
	// failed attempt, up to MaxRetryInterval.
	RetryInterval time.Duration

	MaxRetryInterval time.Duration

	// MaxAttempts is the number of attempts, including the first, after which
	// a delivery is dropped.
	MaxAttempts int

	// PeerRate is the maximum number of retries per second sent to a single
	// node. Zero means unlimited.
	PeerRate float64
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		RetryInterval:    time.Second,
		MaxRetryInterval: 5 * time.Minute,
		MaxAttempts:      20,
		PeerRate:         10,
	}
}

// Stats counts deliveries. Pending is read from the journal, the other two are
// counted since the Outbox was created.
type Stats struct {
	Pending   int
	Delivered uint64
	Failed    uint64
}

// Outbox ...
type Outbox struct {
	journal Journal
	trans   net.Transport
	conf    Config

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	// one lock per node, held around each push to it
	nodeLocksMu sync.Mutex
	nodeLocks   map[string]*sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]bool

	delivered uint64
	failed    uint64

	logger *logrus.Entry
}

// New creates an Outbox that journals deliveries in journal and pushes them
// with trans.
func New(journal Journal, trans net.Transport, conf Config, logger *logrus.Entry) *Outbox {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	if conf.RetryInterval <= 0 {
		conf.RetryInterval = DefaultConfig().RetryInterval
	}

	if conf.MaxRetryInterval < conf.RetryInterval {
		conf.MaxRetryInterval = conf.RetryInterval
	}

	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 1
	}

	return &Outbox{
		journal:  journal,
		trans:    trans,
		conf:     conf,
		limiters:  make(map[string]*rate.Limiter),
		nodeLocks: make(map[string]*sync.Mutex),
		inflight:  make(map[string]bool),
		logger:    logger,
	}
}

// Deliver journals a new delivery and makes the first attempt, unless older
// deliveries to the same node are still pending, in which case it returns
// Pending with ErrQueued. The returned error is the cause of a Pending or
// Failed status; it is nil when the message was delivered.
func (o *Outbox) Deliver(ctx context.Context, target identity.Identity, route string, body []byte) (*Delivery, Status, error) {
	lock := o.nodeLock(target.Node)
	lock.Lock()
	defer lock.Unlock()

	d := NewDelivery(target, route, body)

	if !o.acquire(d.ID) {
		// Cannot happen with fresh uuids.
		return d, Pending, nil
	}
	defer o.release(d.ID)

	queued := o.queued(target.Node)

	if err := o.journal.SaveDelivery(d); err != nil {
		// Without a journal entry a failed attempt would never be retried.
		atomic.AddUint64(&o.failed, 1)
		o.logger.WithError(err).WithField("delivery", d.ID).Error("Journaling delivery")
		return d, Failed, common.WrapErr("Delivery", common.DeliveryFailed, d.ID, err)
	}

	if queued > 0 {
		o.logger.WithFields(logrus.Fields{
			"delivery": d.ID,
			"target":   target.String(),
			"queued":   queued,
		}).Debug("Delivery queued")
		return d, Pending, ErrQueued
	}

	status, err := o.attempt(ctx, d)

	return d, status, err
}

// queued returns the number of journaled deliveries to node.
func (o *Outbox) queued(node string) int {
	ds, err := o.journal.Deliveries()
	if err != nil {
		o.logger.WithError(err).Error("Reading outbox journal")
		return 0
	}

	n := 0
	for _, d := range ds {
		if d.Target.Node == node {
			n++
		}
	}

	return n
}

// Run retries pending deliveries until ctx is cancelled. Deliveries left in the
// journal by a previous process are picked up on the first pass.
func (o *Outbox) Run(ctx context.Context) {
	if ds, err := o.journal.Deliveries(); err != nil {
		o.logger.WithError(err).Error("Reading outbox journal")
	} else if len(ds) > 0 {
		o.logger.WithField("pending", len(ds)).Info("Replaying outbox")
	}

	ticker := time.NewTicker(o.tick())
	defer ticker.Stop()

	for {
		o.retry(ctx, false)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush attempts every pending delivery now, ignoring backoff.
func (o *Outbox) Flush(ctx context.Context) {
	o.retry(ctx, true)
}

// Stats ...
func (o *Outbox) Stats() Stats {
	s := Stats{
		Delivered: atomic.LoadUint64(&o.delivered),
		Failed:    atomic.LoadUint64(&o.failed),
	}

	if ds, err := o.journal.Deliveries(); err == nil {
		s.Pending = len(ds)
	}

	return s
}

func (o *Outbox) tick() time.Duration {
	t := o.conf.RetryInterval / 2
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

// retry walks the journal once. Deliveries to the same node are attempted in
// order, in their own goroutine, so that one slow node does not hold back the
// others. A node's queue stops at the first delivery that is not due yet or
// that fails again, so later messages never overtake it.
func (o *Outbox) retry(ctx context.Context, all bool) {
	ds, err := o.journal.Deliveries()
	if err != nil {
		o.logger.WithError(err).Error("Reading outbox journal")
		return
	}

	byNode := make(map[string][]*Delivery)
	for _, d := range ds {
		byNode[d.Target.Node] = append(byNode[d.Target.Node], d)
	}

	now := time.Now()

	var wg sync.WaitGroup

	for node, queue := range byNode {
		wg.Add(1)
		go func(node string, queue []*Delivery) {
			defer wg.Done()

			lim := o.limiter(node)

			for _, d := range queue {
				if !all && d.NextAttempt.After(now) {
					return
				}

				if err := lim.Wait(ctx); err != nil {
					return
				}

				if !o.retryOne(ctx, d) {
					return
				}
			}
		}(node, queue)
	}

	wg.Wait()
}

// retryOne attempts d again and reports whether the deliveries queued behind
// it may go next.
func (o *Outbox) retryOne(ctx context.Context, d *Delivery) bool {
	lock := o.nodeLock(d.Target.Node)
	lock.Lock()
	defer lock.Unlock()

	if !o.acquire(d.ID) {
		return false
	}
	defer o.release(d.ID)

	// d may have been settled since the journal was read.
	fresh, err := o.journal.GetDelivery(d.ID)
	if err != nil {
		return common.Is(err, common.NotFound)
	}

	status, _ := o.attempt(ctx, fresh)

	return status != Pending
}

// attempt pushes d once and records the outcome in the journal.
func (o *Outbox) attempt(ctx context.Context, d *Delivery) (Status, error) {
	err := o.trans.Push(ctx, d.Target, d.Route, d.Body)

	d.Attempts++

	logger := o.logger.WithFields(logrus.Fields{
		"delivery": d.ID,
		"target":   d.Target.String(),
		"route":    d.Route,
		"attempts": d.Attempts,
	})

	if err == nil {
		atomic.AddUint64(&o.delivered, 1)
		o.forget(d)
		logger.Debug("Delivered")
		return Delivered, nil
	}

	d.LastError = err.Error()

	if net.IsPermanent(err) || d.Attempts >= o.conf.MaxAttempts {
		atomic.AddUint64(&o.failed, 1)
		o.forget(d)
		logger.WithError(err).Warn("Delivery dropped")
		return Failed, err
	}

	d.NextAttempt = time.Now().Add(o.backoff(d.Attempts))

	if jerr := o.journal.SaveDelivery(d); jerr != nil {
		logger.WithError(jerr).Error("Journaling delivery")
	}

	logger.WithError(err).WithField("next_attempt", d.NextAttempt).Debug("Delivery failed, will retry")

	return Pending, err
}

func (o *Outbox) forget(d *Delivery) {
	if err := o.journal.DeleteDelivery(d.ID); err != nil {
		o.logger.WithError(err).WithField("delivery", d.ID).Error("Removing delivery from journal")
	}
}

// backoff returns the delay after the given number of failed attempts.
func (o *Outbox) backoff(attempts int) time.Duration {
	b := o.conf.RetryInterval
	for i := 1; i < attempts; i++ {
		b *= 2
		if b >= o.conf.MaxRetryInterval {
			return o.conf.MaxRetryInterval
		}
	}
	return b
}

func (o *Outbox) limiter(node string) *rate.Limiter {
	o.limitersMu.Lock()
	defer o.limitersMu.Unlock()

	if lim, ok := o.limiters[node]; ok {
		return lim
	}

	limit := rate.Inf
	if o.conf.PeerRate > 0 {
		limit = rate.Limit(o.conf.PeerRate)
	}

	lim := rate.NewLimiter(limit, 1)
	o.limiters[node] = lim

	return lim
}

func (o *Outbox) nodeLock(node string) *sync.Mutex {
	o.nodeLocksMu.Lock()
	defer o.nodeLocksMu.Unlock()

	if l, ok := o.nodeLocks[node]; ok {
		return l
	}

	l := &sync.Mutex{}
	o.nodeLocks[node] = l

	return l
}

func (o *Outbox) acquire(id string) bool {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()

	if o.inflight[id] {
		return false
	}
	o.inflight[id] = true

	return true
}

func (o *Outbox) release(id string) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	delete(o.inflight, id)
}
