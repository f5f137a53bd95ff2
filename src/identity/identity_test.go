package identity

import (
	"testing"

	"github.com/MalekiRe/nexus-social/src/common"
)

func TestParse(t *testing.T) {
	for _, c := range []struct {
		in  string
		out Identity
	}{
		{"alice@localhost:8000", New("alice", "localhost:8000")},
		{"alice@example.org", New("alice", "example.org")},
		{"malek.localhost:8000", New("malek", "localhost:8000")},
		{"bob.127.0.0.1:9000", New("bob", "127.0.0.1:9000")},
		{"carol@node.a@b", New("carol", "node.a@b")},
	} {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q) err: %v", c.in, err)
		}
		if got != c.out {
			t.Errorf("Parse(%q) => %#v != %#v", c.in, got, c.out)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "alice", "@node", "alice@", ".node", "alice."} {
		_, err := Parse(in)
		if !common.Is(err, common.Malformed) {
			t.Errorf("Parse(%q) should fail with Malformed, got %v", in, err)
		}
	}
}

func TestBaseURL(t *testing.T) {
	id := New("lyuma", "localhost:9000")

	if got, want := id.BaseURL(), "http://localhost:9000/lyuma"; got != want {
		t.Fatalf("BaseURL() => %s != %s", got, want)
	}

	if got, want := id.String(), "lyuma@localhost:9000"; got != want {
		t.Fatalf("String() => %s != %s", got, want)
	}

	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if parsed != id {
		t.Fatalf("String/Parse round trip => %#v != %#v", parsed, id)
	}
}
