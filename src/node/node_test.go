package node

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	"github.com/MalekiRe/nexus-social/src/net"
	"github.com/MalekiRe/nexus-social/src/outbox"
	"github.com/MalekiRe/nexus-social/src/social"
	"github.com/MalekiRe/nexus-social/src/store"
	"github.com/stretchr/testify/assert"
)

const (
	addrX = "x.test:8000"
	addrY = "y.test:9000"
)

var (
	alice = identity.New("alice", addrX)
	bob   = identity.New("bob", addrY)
)

type testNode struct {
	*Node
	trans *net.InmemTransport
}

// initNodes starts one node per address, all connected to each other over
// in-memory transports.
func initNodes(t *testing.T, addrs ...string) []testNode {
	nodes := make([]testNode, len(addrs))

	for i, addr := range addrs {
		s := store.NewInmemStore()
		trans := net.NewInmemTransport()
		nodes[i] = testNode{
			Node:  NewNode(TestConfig(t, addr), s, s, trans),
			trans: trans,
		}
	}

	for _, a := range nodes {
		for _, b := range nodes {
			a.trans.Connect(b.Address(), b.Node)
		}
	}

	t.Cleanup(func() {
		for _, n := range nodes {
			n.Shutdown()
		}
	})

	return nodes
}

// aliceAndBob returns node X hosting alice and node Y hosting bob.
func aliceAndBob(t *testing.T) (testNode, testNode) {
	nodes := initNodes(t, addrX, addrY)

	if err := nodes[0].Register("alice"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := nodes[1].Register("bob"); err != nil {
		t.Fatalf("err: %v", err)
	}

	return nodes[0], nodes[1]
}

func getUser(t *testing.T, n testNode, username string) *social.UserRecord {
	u, err := n.GetUser(username)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return u
}

func checkNoPending(t *testing.T, u *social.UserRecord) {
	assert := assert.New(t)
	assert.Empty(u.SentFriendRequests)
	assert.Empty(u.ReceivedFriendRequests)
	assert.Empty(u.FriendRequests)
}

func TestRegister(t *testing.T) {
	nodes := initNodes(t, addrX)

	if err := nodes[0].Register("alice"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := nodes[0].Register("alice"); !common.Is(err, common.AlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	for _, bad := range []string{"", "a.b", "a@b", "a/b"} {
		if err := nodes[0].Register(bad); !common.Is(err, common.Malformed) {
			t.Fatalf("%q: expected Malformed, got %v", bad, err)
		}
	}
}

// Node X hosts alice, node Y hosts bob. alice sends r1 and bob accepts it.
func TestFriendRequestScenario(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	r, err := x.SendFriendRequest(ctx, "alice", bob, "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Delivered, r.Status, r.Problem)
	assert.Equal("r1", r.ID)

	assert.Equal([]string{"r1"}, getUser(t, x, "alice").SentFriendRequests.Sorted())
	assert.Equal([]string{"r1"}, getUser(t, y, "bob").ReceivedFriendRequests.Sorted())

	fr, err := getUser(t, y, "bob").GetFriendRequest("r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(social.FriendRequest{From: alice, To: bob, ID: "r1"}, fr)

	r, err = y.AcceptFriendRequest(ctx, "bob", "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Delivered, r.Status, r.Problem)

	a := getUser(t, x, "alice")
	b := getUser(t, y, "bob")

	assert.Equal([]identity.Identity{alice}, b.Friends)
	assert.Equal([]identity.Identity{bob}, a.Friends)
	checkNoPending(t, a)
	checkNoPending(t, b)
}

func TestDeny(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	if _, err := x.SendFriendRequest(ctx, "alice", bob, "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	r, err := y.DenyFriendRequest(ctx, "bob", "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Delivered, r.Status, r.Problem)

	a := getUser(t, x, "alice")
	b := getUser(t, y, "bob")

	assert.Empty(a.Friends)
	assert.Empty(b.Friends)
	checkNoPending(t, a)
	checkNoPending(t, b)

	if _, err := y.AcceptFriendRequest(ctx, "bob", "r1"); !common.Is(err, common.NotFound) {
		t.Fatalf("accepting a denied request should be NotFound, got %v", err)
	}
}

func TestUnfriend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	x.SendFriendRequest(ctx, "alice", bob, "r1")
	y.AcceptFriendRequest(ctx, "bob", "r1")

	r, err := x.Unfriend(ctx, "alice", bob)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Delivered, r.Status, r.Problem)

	assert.Empty(getUser(t, x, "alice").Friends)
	assert.Empty(getUser(t, y, "bob").Friends)

	if _, err := x.Unfriend(ctx, "alice", bob); !common.Is(err, common.NotFound) {
		t.Fatalf("unfriending a stranger should be NotFound, got %v", err)
	}
}

func TestRepeatedAcceptCycles(t *testing.T) {
	ctx := context.Background()

	x, y := aliceAndBob(t)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("r%d", i)
		x.SendFriendRequest(ctx, "alice", bob, id)
		y.AcceptFriendRequest(ctx, "bob", id)
	}

	assert.Equal(t, []identity.Identity{bob}, getUser(t, x, "alice").Friends)
	assert.Equal(t, []identity.Identity{alice}, getUser(t, y, "bob").Friends)
}

func TestDuplicateID(t *testing.T) {
	ctx := context.Background()

	x, _ := aliceAndBob(t)

	if _, err := x.SendFriendRequest(ctx, "alice", bob, "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	carol := identity.New("carol", addrY)

	_, err := x.SendFriendRequest(ctx, "alice", carol, "r1")
	if !common.Is(err, common.DuplicateID) {
		t.Fatalf("expected DuplicateID, got %v", err)
	}

	// The first request is untouched.
	fr, _ := getUser(t, x, "alice").GetFriendRequest("r1")
	assert.Equal(t, bob, fr.To)
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()

	x, _ := aliceAndBob(t)

	if _, err := x.SendFriendRequest(ctx, "alice", alice, "r1"); !common.Is(err, common.Malformed) {
		t.Fatalf("a request to oneself should be Malformed, got %v", err)
	}

	if _, err := x.SendFriendRequest(ctx, "alice", bob, "a/b"); !common.Is(err, common.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}

	if _, err := x.SendFriendRequest(ctx, "nobody", bob, "r1"); !common.Is(err, common.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGeneratedID(t *testing.T) {
	ctx := context.Background()

	x, y := aliceAndBob(t)

	r, err := x.SendFriendRequest(ctx, "alice", bob, "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(r.ID) != idSize {
		t.Fatalf("expected a generated id, got %q", r.ID)
	}

	assert.Equal(t, []string{r.ID}, getUser(t, y, "bob").ReceivedFriendRequests.Sorted())
}

// Concurrent sends by different users of the same node do not interfere.
func TestIsolation(t *testing.T) {
	ctx := context.Background()

	nodes := initNodes(t, addrX, addrY)
	x, y := nodes[0], nodes[1]

	const senders = 10
	const requests = 10

	if err := y.Register("bob"); err != nil {
		t.Fatalf("err: %v", err)
	}
	for i := 0; i < senders; i++ {
		if err := x.Register(fmt.Sprintf("user%d", i)); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < requests; j++ {
				_, err := x.SendFriendRequest(ctx, fmt.Sprintf("user%d", i), bob, fmt.Sprintf("u%d-r%d", i, j))
				if err != nil {
					t.Errorf("err: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < senders; i++ {
		u := getUser(t, x, fmt.Sprintf("user%d", i))
		if len(u.SentFriendRequests) != requests {
			t.Fatalf("user%d: expected %d sent requests, got %d", i, requests, len(u.SentFriendRequests))
		}
		for id := range u.SentFriendRequests {
			if u.FriendRequests[id].From.Username != fmt.Sprintf("user%d", i) {
				t.Fatalf("user%d holds a request of another user: %#v", i, u.FriendRequests[id])
			}
		}
	}

	assert.Len(t, getUser(t, y, "bob").ReceivedFriendRequests, senders*requests)
}

// A push to an unreachable node leaves the local change committed and is
// delivered once the node is reachable again.
func TestPendingDelivery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	x.trans.Disconnect(addrY)

	r, err := x.SendFriendRequest(ctx, "alice", bob, "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Pending, r.Status)
	assert.NotEmpty(r.Problem)

	assert.Equal([]string{"r1"}, getUser(t, x, "alice").SentFriendRequests.Sorted())
	assert.Empty(getUser(t, y, "bob").ReceivedFriendRequests)
	assert.Equal("1", x.GetStats()["pending_deliveries"])

	x.trans.Connect(addrY, y.Node)
	x.Flush(ctx)

	assert.Equal([]string{"r1"}, getUser(t, y, "bob").ReceivedFriendRequests.Sorted())
	assert.Equal("0", x.GetStats()["pending_deliveries"])
	assert.Equal("1", x.GetStats()["delivered_deliveries"])
}

// A push made while an earlier one to the same node is still pending waits
// for it, so the peer applies both in order.
func TestPendingDeliveryOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, y := aliceAndBob(t)

	if _, err := y.SendFriendRequest(ctx, "bob", alice, "r1"); err != nil {
		t.Fatalf("err: %v", err)
	}

	x.trans.Disconnect(addrY)

	r, err := x.AcceptFriendRequest(ctx, "alice", "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Pending, r.Status)

	x.trans.Connect(addrY, y.Node)

	r, err = x.Unfriend(ctx, "alice", bob)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(outbox.Pending, r.Status)
	assert.Equal(outbox.ErrQueued.Error(), r.Problem)

	// Not delivered ahead of the accept.
	assert.Empty(getUser(t, y, "bob").Friends)
	assert.Equal("2", x.GetStats()["pending_deliveries"])

	x.Flush(ctx)

	assert.Empty(getUser(t, x, "alice").Friends)
	assert.Empty(getUser(t, y, "bob").Friends)
	checkNoPending(t, getUser(t, y, "bob"))
	assert.Equal("0", x.GetStats()["pending_deliveries"])
	assert.Equal("2", x.GetStats()["delivered_deliveries"])
}

// A message refused by the peer is not retried.
func TestFailedDelivery(t *testing.T) {
	ctx := context.Background()

	x, _ := aliceAndBob(t)

	nobody := identity.New("nobody", addrY)

	r, err := x.SendFriendRequest(ctx, "alice", nobody, "r1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	assert.Equal(t, outbox.Failed, r.Status)
	assert.Equal(t, "0", x.GetStats()["pending_deliveries"])
	assert.Equal(t, "1", x.GetStats()["failed_deliveries"])

	// Committed locally all the same.
	assert.Equal(t, []string{"r1"}, getUser(t, x, "alice").SentFriendRequests.Sorted())
}

func TestRunDeliversInBackground(t *testing.T) {
	ctx := context.Background()

	x, y := aliceAndBob(t)
	x.RunAsync()

	x.trans.Disconnect(addrY)

	if r, _ := x.SendFriendRequest(ctx, "alice", bob, "r1"); r.Status != outbox.Pending {
		t.Fatalf("expected Pending, got %v", r.Status)
	}

	x.trans.Connect(addrY, y.Node)

	assert.Eventually(t, func() bool {
		u, err := y.GetUser("bob")
		return err == nil && u.ReceivedFriendRequests.Has("r1")
	}, 2*time.Second, 10*time.Millisecond)
}
