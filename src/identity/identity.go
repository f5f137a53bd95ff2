// Package identity implements the global user@node identity used to address a
// user across the federation.
package identity

import (
	"strings"

	"github.com/MalekiRe/nexus-social/src/common"
)

// Identity is a username paired with the address (host[:port]) of the node
// hosting it. It is a value type and is never modified after construction.
type Identity struct {
	Username string `json:"username" codec:"username" validate:"required,excludesall=@./"`
	Node     string `json:"node" codec:"node" validate:"required,excludesall=@/"`
}

// New ...
func New(username, node string) Identity {
	return Identity{
		Username: username,
		Node:     node,
	}
}

// Parse reads an identity from its string form. The username and node are
// separated by the first '@'. Strings without an '@' are split on the first
// '.', which is how older clients encode identities (alice.localhost:8000).
func Parse(s string) (Identity, error) {
	sep := strings.IndexByte(s, '@')
	if sep < 0 {
		sep = strings.IndexByte(s, '.')
	}

	if sep <= 0 || sep == len(s)-1 {
		return Identity{}, common.NewErr("Identity", common.Malformed, s)
	}

	return New(s[:sep], s[sep+1:]), nil
}

// BaseURL returns the root of the user's federation routes on its home node.
func (id Identity) BaseURL() string {
	return "http://" + id.Node + "/" + id.Username
}

// String ...
func (id Identity) String() string {
	return id.Username + "@" + id.Node
}

// IsZero reports whether id is the zero Identity.
func (id Identity) IsZero() bool {
	return id.Username == "" && id.Node == ""
}
