package node

import (
	"context"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/MalekiRe/nexus-social/src/store"
	"github.com/sirupsen/logrus"
)

// SendInvite records an invite from a local user and pushes it to the home node
// of to. id may be empty, in which case one is generated.
func (n *Node) SendInvite(ctx context.Context, username string, to identity.Identity, id string) (Receipt, error) {
	from, id, err := n.prepare(username, to, id)
	if err != nil {
		return Receipt{}, err
	}

	inv := social.Invite{From: from, To: to, ID: id}

	if err := social.Validate(inv); err != nil {
		return Receipt{}, err
	}

	err = n.store.Update(username, func(u *social.UserRecord) error {
		return u.AddSentInvite(inv)
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user": username,
		"to":   to.String(),
		"id":   id,
	}).Debug("SendInvite")

	return n.push(ctx, id, to, net.RouteSendInvite, inv), nil
}

// AcceptInvite removes a received invite once the local user has acted on its
// payload. Accepting has no other effect on either record, so the sender is
// told to remove the invite like RemoveInvite does.
func (n *Node) AcceptInvite(ctx context.Context, username string, id string) (Receipt, error) {
	inv, err := store.Transact(n.store, username, func(u *social.UserRecord) (social.Invite, error) {
		return u.TakeReceivedInvite(id)
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user": username,
		"from": inv.From.String(),
		"id":   id,
	}).Debug("AcceptInvite")

	return n.push(ctx, id, inv.From, net.RouteRemoveInvite, id), nil
}

// RemoveInvite removes a pending invite, sent or received, from both sides.
func (n *Node) RemoveInvite(ctx context.Context, username string, id string) (Receipt, error) {
	var sent bool

	inv, err := store.Transact(n.store, username, func(u *social.UserRecord) (social.Invite, error) {
		var (
			inv social.Invite
			err error
		)
		inv, sent, err = u.TakeInvite(id)
		return inv, err
	})
	if err != nil {
		return Receipt{}, err
	}

	counterpart := inv.From
	if sent {
		counterpart = inv.To
	}

	n.logger.WithFields(logrus.Fields{
		"user":        username,
		"counterpart": counterpart.String(),
		"sent":        sent,
		"id":          id,
	}).Debug("RemoveInvite")

	return n.push(ctx, id, counterpart, net.RouteRemoveInvite, id), nil
}

/*******************************************************************************
Receiving half
*******************************************************************************/

func (n *Node) receiveInvite(username string, inv social.Invite) error {
	if inv.To.Username != username {
		return common.NewErr("Invite", common.Malformed, inv.ID)
	}

	return n.store.Update(username, func(u *social.UserRecord) error {
		added, err := u.AddReceivedInvite(inv)
		if err == nil && !added {
			n.logger.WithField("id", inv.ID).Debug("Invite already received or resolved")
		}
		return err
	})
}

// receiveRemoveInvite removes an invite from whichever side holds it. An
// unknown id was already removed.
func (n *Node) receiveRemoveInvite(username string, id string) error {
	return n.store.Update(username, func(u *social.UserRecord) error {
		if _, _, err := u.TakeInvite(id); err != nil {
			n.logger.WithField("id", id).Debug("Invite already removed")
		}
		return nil
	})
}
