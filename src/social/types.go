// Package social defines the relationship entities exchanged between nodes and
// the per-user record a node keeps about them.
package social

import (
	"github.com/MalekiRe/nexus-social/src/identity"
)

// FriendRequest is sent by From to To. ID is chosen by the initiator and is
// the only key used to find the request afterwards.
type FriendRequest struct {
	From identity.Identity `json:"from" codec:"from"`
	To   identity.Identity `json:"to" codec:"to"`
	ID   string            `json:"id" codec:"id" validate:"required,max=128,excludesall=/"`
}

// Invite has the same shape as a FriendRequest but is tracked separately. Its
// payload (e.g. a joinable session) is for the caller to act on.
type Invite struct {
	From identity.Identity `json:"from" codec:"from"`
	To   identity.Identity `json:"to" codec:"to"`
	ID   string            `json:"id" codec:"id" validate:"required,max=128,excludesall=/"`
}

// UnfriendRequest is the notice pushed to a former friend's node.
type UnfriendRequest struct {
	From identity.Identity `json:"from" codec:"from"`
	To   identity.Identity `json:"to" codec:"to"`
}
