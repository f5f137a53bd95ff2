package node

import (
	"context"
	"sync/atomic"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/social"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// Receive implements the net.Receiver interface. It applies a message pushed by
// a peer node to the record of a local user. Every route is idempotent, so a
// message delivered twice has the effect of a single delivery.
func (n *Node) Receive(ctx context.Context, username string, route string, body []byte) error {
	atomic.AddUint64(&n.received, 1)

	err := n.receive(username, route, body)

	logger := n.logger.WithFields(logrus.Fields{
		"user":  username,
		"route": route,
	})

	if err != nil {
		atomic.AddUint64(&n.refused, 1)
		logger.WithError(err).Debug("Refused message")
		return err
	}

	logger.Debug("Received message")

	return nil
}

func (n *Node) receive(username string, route string, body []byte) error {
	switch route {
	case net.RouteSendFriendRequest:
		var fr social.FriendRequest
		if err := decode(body, &fr); err != nil {
			return err
		}
		return n.receiveFriendRequest(username, fr)
	case net.RouteAcceptFriendRequest, net.RouteDenyFriendRequest:
		id, err := decodeID(body)
		if err != nil {
			return err
		}
		return n.receiveResolution(username, id, route == net.RouteAcceptFriendRequest)
	case net.RouteUnfriend:
		var notice social.UnfriendRequest
		if err := decode(body, &notice); err != nil {
			return err
		}
		return n.receiveUnfriend(username, notice)
	case net.RouteSendInvite:
		var inv social.Invite
		if err := decode(body, &inv); err != nil {
			return err
		}
		return n.receiveInvite(username, inv)
	case net.RouteRemoveInvite:
		id, err := decodeID(body)
		if err != nil {
			return err
		}
		return n.receiveRemoveInvite(username, id)
	default:
		return common.NewErr("Route", common.NotFound, route)
	}
}

// decode reads and validates a JSON message.
func decode(body []byte, v interface{}) error {
	if err := jsoniter.Unmarshal(body, v); err != nil {
		return common.WrapErr("Message", common.Malformed, "body", err)
	}
	return social.Validate(v)
}

// decodeID reads a message made of a bare JSON string.
func decodeID(body []byte) (string, error) {
	var id string
	if err := jsoniter.Unmarshal(body, &id); err != nil {
		return "", common.WrapErr("Message", common.Malformed, "body", err)
	}
	return id, social.ValidateID(id)
}
