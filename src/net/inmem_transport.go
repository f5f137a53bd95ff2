package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
)

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Pushes are handed directly to
// the Receiver connected under the target's node address.
type InmemTransport struct {
	sync.RWMutex
	peers  map[string]Receiver
	closed bool
}

// NewInmemTransport ...
func NewInmemTransport() *InmemTransport {
	return &InmemTransport{
		peers: make(map[string]Receiver),
	}
}

// Push implements the Transport interface.
func (i *InmemTransport) Push(ctx context.Context, target identity.Identity, route string, body []byte) error {
	i.RLock()
	peer, ok := i.peers[target.Node]
	closed := i.closed
	i.RUnlock()

	key := target.String() + "/" + route

	if closed {
		return common.WrapErr("Delivery", common.DeliveryFailed, key, fmt.Errorf("transport closed"))
	}

	if !ok {
		return common.WrapErr("Delivery", common.DeliveryFailed, key, fmt.Errorf("failed to connect to peer: %v", target.Node))
	}

	if err := ctx.Err(); err != nil {
		return common.WrapErr("Delivery", common.DeliveryFailed, key, err)
	}

	// Copy the body so the receiver cannot alias the sender's buffer.
	msg := append([]byte(nil), body...)

	if err := peer.Receive(ctx, target.Username, route, msg); err != nil {
		if rejectedKind(err) {
			return common.WrapErr("Delivery", common.DeliveryFailed, key, fmt.Errorf("%w: %v", ErrRejected, err))
		}
		return common.WrapErr("Delivery", common.DeliveryFailed, key, err)
	}

	return nil
}

// rejectedKind reports whether a receiver error refuses the message for good,
// like a 4xx answer over HTTP. Errors of no known kind are internal to the
// peer and may go away.
func rejectedKind(err error) bool {
	kind, ok := common.KindOf(err)
	if !ok {
		return false
	}

	switch kind {
	case common.NotFound, common.AlreadyExists, common.DuplicateID, common.Malformed, common.Forbidden:
		return true
	default:
		return false
	}
}

// Connect is used to route pushes for a node address to a Receiver. This allows
// for local routing.
func (i *InmemTransport) Connect(node string, r Receiver) {
	i.Lock()
	defer i.Unlock()
	i.peers[node] = r
}

// Disconnect is used to remove the ability to route to a given node.
func (i *InmemTransport) Disconnect(node string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, node)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]Receiver)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]Receiver)
	i.closed = true
	return nil
}
