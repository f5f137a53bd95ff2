package net

import (
	"context"

	"github.com/MalekiRe/nexus-social/src/identity"
)

// Federation routes. They are relative to the base URL of the target user
// (cf. identity.BaseURL). Routes under public/ are called by the counterpart of
// a friend-request exchange; routes under friend/ by an established friend.
const (
	RouteSendFriendRequest   = "public/post/send-friend-request"
	RouteAcceptFriendRequest = "public/post/accept-friend-request"
	RouteDenyFriendRequest   = "public/post/deny-friend-request"
	RouteUnfriend            = "friend/post/unfriend"
	RouteSendInvite          = "friend/post/send-invite"
	RouteRemoveInvite        = "friend/post/remove-invite"
)

// Routes lists every federation route a node must serve.
var Routes = []string{
	RouteSendFriendRequest,
	RouteAcceptFriendRequest,
	RouteDenyFriendRequest,
	RouteUnfriend,
	RouteSendInvite,
	RouteRemoveInvite,
}

// Transport provides an interface for network transports to allow a node to
// push federation messages to other nodes.
type Transport interface {

	// Push delivers body to route on the home node of target. It returns an
	// error with the DeliveryFailed kind if the message was not accepted.
	Push(ctx context.Context, target identity.Identity, route string, body []byte) error

	// Close permanently closes a transport, stopping any associated goroutines
	// and freeing other resources.
	Close() error
}

// Receiver is the inbound side of the federation protocol: it applies a pushed
// message to one of the local users.
type Receiver interface {
	Receive(ctx context.Context, username string, route string, body []byte) error
}
