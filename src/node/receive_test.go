package node

import (
	"context"
	"testing"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/stretchr/testify/assert"
)

func receive(t *testing.T, n testNode, username, route, body string) error {
	return n.Receive(context.Background(), username, route, []byte(body))
}

const r1 = `{"from":{"username":"alice","node":"x.test:8000"},"to":{"username":"bob","node":"y.test:9000"},"id":"r1"}`

func TestReceiveRedelivery(t *testing.T) {
	_, y := aliceAndBob(t)

	for i := 0; i < 2; i++ {
		if err := receive(t, y, "bob", net.RouteSendFriendRequest, r1); err != nil {
			t.Fatalf("delivery %d: err: %v", i, err)
		}
	}

	assert.Equal(t, []string{"r1"}, getUser(t, y, "bob").ReceivedFriendRequests.Sorted())

	// Same id, different sender.
	other := `{"from":{"username":"carol","node":"x.test:8000"},"to":{"username":"bob","node":"y.test:9000"},"id":"r1"}`

	if err := receive(t, y, "bob", net.RouteSendFriendRequest, other); !common.Is(err, common.DuplicateID) {
		t.Fatalf("expected DuplicateID, got %v", err)
	}
}

// A send that arrives again after the request was accepted does not reopen it.
func TestReceiveRedeliveryAfterAccept(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	if _, err := x.SendFriendRequest(ctx, "alice", bob, "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := y.AcceptFriendRequest(ctx, "bob", "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := receive(t, y, "bob", net.RouteSendFriendRequest, r1); err != nil {
		t.Fatalf("err: %v", err)
	}

	b := getUser(t, y, "bob")
	checkNoPending(t, b)
	assert.Equal([]identity.Identity{alice}, b.Friends)

	if _, err := y.AcceptFriendRequest(ctx, "bob", "r1"); !common.Is(err, common.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReceiveInviteRedeliveryAfterAccept(t *testing.T) {
	ctx := context.Background()

	x, y := aliceAndBob(t)

	if _, err := x.SendInvite(ctx, "alice", bob, "i1"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := y.AcceptInvite(ctx, "bob", "i1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	i1 := `{"from":{"username":"alice","node":"x.test:8000"},"to":{"username":"bob","node":"y.test:9000"},"id":"i1"}`
	if err := receive(t, y, "bob", net.RouteSendInvite, i1); err != nil {
		t.Fatalf("err: %v", err)
	}

	b := getUser(t, y, "bob")
	assert.Empty(t, b.ReceivedInvites)
	assert.Empty(t, b.Invites)
}

func TestReceiveResolutionIdempotent(t *testing.T) {
	ctx := context.Background()

	x, _ := aliceAndBob(t)

	x.trans.DisconnectAll()

	if _, err := x.SendFriendRequest(ctx, "alice", bob, "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := receive(t, x, "alice", net.RouteAcceptFriendRequest, `"r1"`); err != nil {
			t.Fatalf("delivery %d: err: %v", i, err)
		}
	}

	a := getUser(t, x, "alice")
	assert.Equal(t, []identity.Identity{bob}, a.Friends)
	checkNoPending(t, a)

	// A deny for a request that no longer exists changes nothing.
	if err := receive(t, x, "alice", net.RouteDenyFriendRequest, `"r1"`); err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(t, []identity.Identity{bob}, getUser(t, x, "alice").Friends)
}

// A peer cannot resolve a request on behalf of the user who received it.
func TestReceiveResolutionWrongSide(t *testing.T) {
	_, y := aliceAndBob(t)

	if err := receive(t, y, "bob", net.RouteSendFriendRequest, r1); err != nil {
		t.Fatalf("err: %v", err)
	}

	err := receive(t, y, "bob", net.RouteAcceptFriendRequest, `"r1"`)
	if !common.Is(err, common.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}

	assert.Empty(t, getUser(t, y, "bob").Friends)
}

func TestReceiveUnfriendUnknown(t *testing.T) {
	_, y := aliceAndBob(t)

	notice := `{"from":{"username":"alice","node":"x.test:8000"},"to":{"username":"bob","node":"y.test:9000"}}`

	if err := receive(t, y, "bob", net.RouteUnfriend, notice); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestReceiveErrors(t *testing.T) {
	_, y := aliceAndBob(t)

	cases := []struct {
		name     string
		username string
		route    string
		body     string
		kind     common.ErrKind
	}{
		{"wrong user", "nobody", net.RouteSendFriendRequest, r1, common.Malformed},
		{"unknown user", "nobody", net.RouteSendFriendRequest, `{"from":{"username":"alice","node":"x.test:8000"},"to":{"username":"nobody","node":"y.test:9000"},"id":"r1"}`, common.NotFound},
		{"unknown route", "bob", "public/post/poke", `{}`, common.NotFound},
		{"bad json", "bob", net.RouteSendFriendRequest, `{"from":`, common.Malformed},
		{"missing id", "bob", net.RouteSendInvite, `{"from":{"username":"alice","node":"x"},"to":{"username":"bob","node":"y"}}`, common.Malformed},
		{"object for id", "bob", net.RouteAcceptFriendRequest, `{"id":"r1"}`, common.Malformed},
		{"empty id", "bob", net.RouteRemoveInvite, `""`, common.Malformed},
	}

	for _, c := range cases {
		err := receive(t, y, c.username, c.route, c.body)
		if !common.Is(err, c.kind) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.kind, err)
		}
	}

	// Addressed to bob but delivered to a registered user who is not bob.
	y.Register("carol")
	if err := receive(t, y, "carol", net.RouteSendFriendRequest, r1); !common.Is(err, common.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}

	if err := receive(t, y, "carol", net.RouteAcceptFriendRequest, `"zz"`); err != nil {
		t.Fatalf("unknown resolution should be a no-op, got %v", err)
	}

	if _, err := y.GetUser("nobody"); !common.Is(err, common.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	assert.Equal(t, "8", y.GetStats()["refused_messages"])
}
