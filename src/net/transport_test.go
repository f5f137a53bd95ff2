package net

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
)

const (
	INMEM = iota
	HTTP
	numTestTransports // NOTE: must be last
)

type message struct {
	username string
	route    string
	body     string
}

// recorder is a Receiver that remembers what it was sent and fails on demand.
type recorder struct {
	sync.Mutex
	messages []message
	fail     error
}

func (r *recorder) Receive(ctx context.Context, username string, route string, body []byte) error {
	r.Lock()
	defer r.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.messages = append(r.messages, message{username, route, string(body)})
	return nil
}

func (r *recorder) received() []message {
	r.Lock()
	defer r.Unlock()
	return append([]message(nil), r.messages...)
}

// recorderHandler serves /{username}/{route} in front of a recorder.
func recorderHandler(r *recorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
		body, _ := io.ReadAll(req.Body)
		if err := r.Receive(req.Context(), parts[0], parts[1], body); err != nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":true,"kind":"Not Found","problem":"` + err.Error() + `"}`))
			return
		}
		w.Write([]byte("{}"))
	})
}

// newTestPeer returns a transport able to reach a recorder under the returned
// node address.
func newTestPeer(ttype int, t *testing.T) (Transport, *recorder, string, func()) {
	rec := &recorder{}

	switch ttype {
	case INMEM:
		trans := NewInmemTransport()
		trans.Connect("peer:1", rec)
		return trans, rec, "peer:1", func() { trans.Close() }
	case HTTP:
		srv := httptest.NewServer(recorderHandler(rec))
		trans := NewHTTPTransport(time.Second, common.NewTestEntry(t, "transport"))
		node := strings.TrimPrefix(srv.URL, "http://")
		return trans, rec, node, func() {
			trans.Close()
			srv.Close()
		}
	default:
		panic("Unknown transport type")
	}
}

func TestTransport_Push(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans, rec, node, cleanup := newTestPeer(ttype, t)

		target := identity.New("bob", node)
		body := `{"from":{"username":"alice","node":"x"},"id":"r1"}`

		if err := trans.Push(context.Background(), target, RouteSendFriendRequest, []byte(body)); err != nil {
			t.Fatalf("err: %v", err)
		}

		msgs := rec.received()
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}

		expected := message{"bob", RouteSendFriendRequest, body}
		if msgs[0] != expected {
			t.Fatalf("expected %#v, got %#v", expected, msgs[0])
		}

		cleanup()
	}
}

func TestTransport_Rejected(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans, rec, node, cleanup := newTestPeer(ttype, t)

		rec.fail = common.NewErr("User", common.NotFound, "bob")

		err := trans.Push(context.Background(), identity.New("bob", node), RouteUnfriend, []byte("{}"))

		if !common.Is(err, common.DeliveryFailed) {
			t.Fatalf("expected DeliveryFailed, got %v", err)
		}

		if !IsPermanent(err) {
			t.Fatalf("a refused message should be permanent: %v", err)
		}

		cleanup()
	}
}

func TestTransport_Unreachable(t *testing.T) {
	inmem := NewInmemTransport()
	defer inmem.Close()

	httpTrans := NewHTTPTransport(200*time.Millisecond, common.NewTestEntry(t, "transport"))
	defer httpTrans.Close()

	// Nothing listens on port 1.
	target := identity.New("bob", "127.0.0.1:1")

	for _, trans := range []Transport{inmem, httpTrans} {
		err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}"))

		if !common.Is(err, common.DeliveryFailed) {
			t.Fatalf("%T: expected DeliveryFailed, got %v", trans, err)
		}

		if IsPermanent(err) {
			t.Fatalf("%T: an unreachable peer should be retried: %v", trans, err)
		}
	}
}

func TestHTTPTransport_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":true,"kind":"Unknown","problem":"disk full"}`))
	}))
	defer srv.Close()

	trans := NewHTTPTransport(time.Second, common.NewTestEntry(t, "transport"))
	defer trans.Close()

	target := identity.New("bob", strings.TrimPrefix(srv.URL, "http://"))

	err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}"))

	if !common.Is(err, common.DeliveryFailed) {
		t.Fatalf("expected DeliveryFailed, got %v", err)
	}

	if IsPermanent(err) {
		t.Fatalf("5xx should be retried: %v", err)
	}

	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("problem not reported: %v", err)
	}
}

func TestInmemTransport_Disconnect(t *testing.T) {
	rec := &recorder{}

	trans := NewInmemTransport()
	trans.Connect("y", rec)

	target := identity.New("bob", "y")

	trans.Disconnect("y")

	if err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}")); err == nil {
		t.Fatalf("push to a disconnected node should fail")
	}

	trans.Connect("y", rec)

	if err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}")); err != nil {
		t.Fatalf("err: %v", err)
	}

	trans.Close()

	if err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}")); err == nil {
		t.Fatalf("push on a closed transport should fail")
	}

	if n := len(rec.received()); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-req.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	trans := NewHTTPTransport(50*time.Millisecond, common.NewTestEntry(t, "transport"))
	defer trans.Close()

	target := identity.New("bob", strings.TrimPrefix(srv.URL, "http://"))

	start := time.Now()
	err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}"))
	elapsed := time.Since(start)

	if !common.Is(err, common.DeliveryFailed) {
		t.Fatalf("expected DeliveryFailed, got %v", err)
	}

	if IsPermanent(err) {
		t.Fatalf("a timed out push should be retried: %v", err)
	}

	if elapsed > time.Second {
		t.Fatalf("push returned after %v", elapsed)
	}
}

func TestHTTPTransport_Status(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusConflict, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
	}

	trans := NewHTTPTransport(time.Second, common.NewTestEntry(t, "transport"))
	defer trans.Close()

	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(c.status)
		}))

		target := identity.New("bob", strings.TrimPrefix(srv.URL, "http://"))
		err := trans.Push(context.Background(), target, RouteUnfriend, []byte("{}"))

		srv.Close()

		if !common.Is(err, common.DeliveryFailed) {
			t.Fatalf("%d: expected DeliveryFailed, got %v", c.status, err)
		}

		if IsPermanent(err) != c.permanent {
			t.Fatalf("%d: expected permanent=%v, got %v", c.status, c.permanent, err)
		}
	}
}

// Receiver errors are only final when they say what is wrong with the message,
// as a 4xx answer does over HTTP.
func TestInmemTransport_ReceiverErrors(t *testing.T) {
	cases := []struct {
		name      string
		fail      error
		permanent bool
	}{
		{"not found", common.NewErr("User", common.NotFound, "bob"), true},
		{"malformed", common.NewErr("Message", common.Malformed, "body"), true},
		{"duplicate", common.NewErr("FriendRequest", common.DuplicateID, "r1"), true},
		{"forbidden", common.NewErr("User", common.Forbidden, "bob"), true},
		{"delivery failed", common.NewErr("Delivery", common.DeliveryFailed, "x"), false},
		{"no kind", errors.New("disk full"), false},
	}

	for _, c := range cases {
		rec := &recorder{fail: c.fail}

		trans := NewInmemTransport()
		trans.Connect("y", rec)

		err := trans.Push(context.Background(), identity.New("bob", "y"), RouteUnfriend, []byte("{}"))

		if !common.Is(err, common.DeliveryFailed) {
			t.Fatalf("%s: expected DeliveryFailed, got %v", c.name, err)
		}

		if IsPermanent(err) != c.permanent {
			t.Fatalf("%s: expected permanent=%v, got %v", c.name, c.permanent, err)
		}

		trans.Close()
	}
}
