package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"minesweeper-server/internal/protocol"
	"minesweeper-server/internal/region"
	"minesweeper-server/internal/session"
)

// fakeRegistry is a minimal Registry double: sessions are preloaded by
// player ID and every one of them is reported as "in region" unless its
// ID appears in outOfRegion.
type fakeRegistry struct {
	mu          sync.Mutex
	sessions    map[string]*session.Session
	outOfRegion map[string]bool
	removed     []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		sessions:    make(map[string]*session.Session),
		outOfRegion: make(map[string]bool),
	}
}

func (f *fakeRegistry) add(id string, handle session.Handle, bufCap int) *session.Session {
	sess := session.NewForTest(id, handle, bufCap)
	f.mu.Lock()
	f.sessions[id] = sess
	f.mu.Unlock()
	return sess
}

func (f *fakeRegistry) SessionsInRegion(reg region.Region, exclude string) []session.Projection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []session.Projection
	for id := range f.sessions {
		if id == exclude || f.outOfRegion[id] {
			continue
		}
		out = append(out, session.Projection{PlayerID: id})
	}
	return out
}

func (f *fakeRegistry) Get(playerID string) (*session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[playerID]
	return sess, ok
}

func (f *fakeRegistry) Remove(ctx context.Context, handle session.Handle) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sess := range f.sessions {
		if sess.Handle == handle {
			delete(f.sessions, id)
			f.removed = append(f.removed, id)
			return id, true
		}
	}
	return "", false
}

func TestSendDeliversToEveryTargetInRegion(t *testing.T) {
	reg := newFakeRegistry()
	s1 := reg.add("p1", "h1", 8)
	s2 := reg.add("p2", "h2", 8)

	b := New(reg)
	if err := b.Send(context.Background(), region.Centered(0, 0, 5, 5, 640, 640), protocol.TypeScoreUpdate, protocol.ScoreUpdate{Score: 10}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for name, sess := range map[string]*session.Session{"p1": s1, "p2": s2} {
		select {
		case frame := <-sess.Outbound():
			var env protocol.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("%s: decode envelope: %v", name, err)
			}
			if env.Type != protocol.TypeScoreUpdate {
				t.Fatalf("%s: expected %s, got %s", name, protocol.TypeScoreUpdate, env.Type)
			}
		default:
			t.Fatalf("%s: expected a delivered frame", name)
		}
	}
}

func TestSendExcludesGivenPlayer(t *testing.T) {
	reg := newFakeRegistry()
	s1 := reg.add("p1", "h1", 8)

	b := New(reg)
	if err := b.Send(context.Background(), region.Centered(0, 0, 5, 5, 640, 640), protocol.TypePlayerLeft, protocol.PlayerLeft{ID: "p1"}, "p1"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-s1.Outbound():
		t.Fatal("excluded player should not receive the broadcast")
	default:
	}
}

func TestSendDropsAndRemovesFullQueueRecipient(t *testing.T) {
	reg := newFakeRegistry()
	s1 := reg.add("p1", "h1", 1)
	if !s1.Send([]byte("x")) {
		t.Fatal("setup: expected first send to succeed")
	}

	b := New(reg)
	if err := b.Send(context.Background(), region.Centered(0, 0, 5, 5, 640, 640), protocol.TypeScoreUpdate, protocol.ScoreUpdate{Score: 1}, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, ok := reg.Get("p1"); ok {
		t.Fatal("expected unresponsive session to be removed from the registry")
	}
}
