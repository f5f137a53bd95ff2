package node

import (
	"context"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/MalekiRe/nexus-social/src/store"
	"github.com/aidarkhanov/nanoid/v2"
	"github.com/sirupsen/logrus"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idSize     = 21
)

// newID generates an id for a request or invite whose sender did not choose
// one.
func newID() (string, error) {
	return nanoid.GenerateString(idAlphabet, idSize)
}

// prepare checks the arguments shared by SendFriendRequest and SendInvite and
// fills in a missing id.
func (n *Node) prepare(username string, to identity.Identity, id string) (identity.Identity, string, error) {
	from := n.Identity(username)

	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return from, "", err
		}
	}

	if to == from {
		return from, "", common.NewErr("Identity", common.Malformed, to.String())
	}

	return from, id, nil
}

// SendFriendRequest records a friend request from a local user and pushes it
// to the home node of to. id may be empty, in which case one is generated.
func (n *Node) SendFriendRequest(ctx context.Context, username string, to identity.Identity, id string) (Receipt, error) {
	from, id, err := n.prepare(username, to, id)
	if err != nil {
		return Receipt{}, err
	}

	fr := social.FriendRequest{From: from, To: to, ID: id}

	if err := social.Validate(fr); err != nil {
		return Receipt{}, err
	}

	err = n.store.Update(username, func(u *social.UserRecord) error {
		return u.AddSentFriendRequest(fr)
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user": username,
		"to":   to.String(),
		"id":   id,
	}).Debug("SendFriendRequest")

	return n.push(ctx, id, to, net.RouteSendFriendRequest, fr), nil
}

// AcceptFriendRequest resolves a received friend request: the sender becomes a
// friend of the local user, and the sender's node is told to do the same.
func (n *Node) AcceptFriendRequest(ctx context.Context, username string, id string) (Receipt, error) {
	fr, err := store.Transact(n.store, username, func(u *social.UserRecord) (social.FriendRequest, error) {
		fr, err := u.TakeReceivedFriendRequest(id)
		if err != nil {
			return fr, err
		}
		u.AddFriend(fr.From)
		return fr, nil
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user": username,
		"from": fr.From.String(),
		"id":   id,
	}).Debug("AcceptFriendRequest")

	return n.push(ctx, id, fr.From, net.RouteAcceptFriendRequest, id), nil
}

// DenyFriendRequest drops a received friend request and tells the sender's node
// to drop it too.
func (n *Node) DenyFriendRequest(ctx context.Context, username string, id string) (Receipt, error) {
	fr, err := store.Transact(n.store, username, func(u *social.UserRecord) (social.FriendRequest, error) {
		return u.TakeReceivedFriendRequest(id)
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user": username,
		"from": fr.From.String(),
		"id":   id,
	}).Debug("DenyFriendRequest")

	return n.push(ctx, id, fr.From, net.RouteDenyFriendRequest, id), nil
}

// Unfriend ends a friendship on both sides. It fails with NotFound if target is
// not a friend of the local user.
func (n *Node) Unfriend(ctx context.Context, username string, target identity.Identity) (Receipt, error) {
	err := n.store.Update(username, func(u *social.UserRecord) error {
		if u.RemoveFriend(target) == 0 {
			return common.NewErr("Friend", common.NotFound, target.String())
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"user":   username,
		"target": target.String(),
	}).Debug("Unfriend")

	notice := social.UnfriendRequest{From: n.Identity(username), To: target}

	return n.push(ctx, "", target, net.RouteUnfriend, notice), nil
}

/*******************************************************************************
Receiving half
*******************************************************************************/

func (n *Node) receiveFriendRequest(username string, fr social.FriendRequest) error {
	if fr.To.Username != username {
		return common.NewErr("FriendRequest", common.Malformed, fr.ID)
	}

	return n.store.Update(username, func(u *social.UserRecord) error {
		added, err := u.AddReceivedFriendRequest(fr)
		if err == nil && !added {
			n.logger.WithField("id", fr.ID).Debug("Friend request already received or resolved")
		}
		return err
	})
}

// receiveResolution applies the accept or deny of a request the local user
// sent. An id the user no longer holds was already resolved by an earlier
// delivery of the same message.
func (n *Node) receiveResolution(username string, id string, accepted bool) error {
	return n.store.Update(username, func(u *social.UserRecord) error {
		fr, err := u.TakeSentFriendRequest(id)
		if err != nil {
			if _, held := u.FriendRequests[id]; held {
				// Received, not sent: the peer has no say over it.
				return common.NewErr("FriendRequest", common.Malformed, id)
			}
			n.logger.WithField("id", id).Debug("Friend request already resolved")
			return nil
		}

		if accepted {
			u.AddFriend(fr.To)
		}

		return nil
	})
}

func (n *Node) receiveUnfriend(username string, notice social.UnfriendRequest) error {
	if notice.To.Username != username {
		return common.NewErr("UnfriendRequest", common.Malformed, notice.To.String())
	}

	return n.store.Update(username, func(u *social.UserRecord) error {
		u.RemoveFriend(notice.From)
		return nil
	})
}
