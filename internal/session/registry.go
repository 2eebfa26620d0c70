package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"minesweeper-server/internal/region"
	"minesweeper-server/internal/storage"

	"github.com/google/uuid"
)

// PlayerStore is the narrow slice of storage.Repository the registry
// needs: minting/refreshing the durable player record on connect and
// disconnect.
type PlayerStore interface {
	FindOrCreatePlayer(ctx context.Context, id string) (storage.Player, error)
	TouchPlayer(ctx context.Context, id string) error
}

// Registry is the process-wide handle for active sessions: two maps
// (playerId -> session, transportHandle -> playerId) maintained in
// lockstep behind one mutex, following the same shape as a pub/sub
// subscriber table — reader-tolerant access for region queries, exclusive
// access for add/remove.
type Registry struct {
	mu       sync.RWMutex
	byPlayer map[string]*Session
	byHandle map[Handle]string

	w, h int
	repo PlayerStore
}

// New constructs an empty Registry over a w x h toroidal map.
func New(w, h int, repo PlayerStore) *Registry {
	return &Registry{
		byPlayer: make(map[string]*Session),
		byHandle: make(map[Handle]string),
		w:        w,
		h:        h,
		repo:     repo,
	}
}

// Add mints a fresh playerId (a server-generated identity; there is no
// reconnection in this version), ensures the durable player row exists,
// and registers a new Session at the map's centre.
func (r *Registry) Add(ctx context.Context, handle Handle) (*Session, error) {
	id := uuid.NewString()

	player, err := r.repo.FindOrCreatePlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("register player: %w", err)
	}

	sess := newSession(id, handle, r.w, r.h)
	sess.score = player.Score

	r.mu.Lock()
	r.byPlayer[id] = sess
	r.byHandle[handle] = id
	r.mu.Unlock()

	return sess, nil
}

// Remove detaches both mappings for handle and refreshes the departing
// player's lastSeen as a side effect. It reports ok=false if handle was
// never registered (already removed, e.g. by a prior send failure).
func (r *Registry) Remove(ctx context.Context, handle Handle) (playerID string, ok bool) {
	r.mu.Lock()
	id, found := r.byHandle[handle]
	if found {
		delete(r.byHandle, handle)
		if sess, exists := r.byPlayer[id]; exists {
			sess.closed = true
			delete(r.byPlayer, id)
		}
	}
	r.mu.Unlock()

	if !found {
		return "", false
	}
	if err := r.repo.TouchPlayer(ctx, id); err != nil {
		// lastSeen staleness on a failed touch is not worth surfacing as
		// a removal failure; log it and report the removal.
		slog.Warn("session: touch on remove failed", "player_id", id, "err", err)
	}
	return id, true
}

// UpdateCursor clamps (x, y) into [0, w) x [0, h) and stores it as the
// session's cursor, returning the clamped coordinates.
func (r *Registry) UpdateCursor(playerID string, x, y float64) (int, int) {
	cx := clamp(int(x), r.w)
	cy := clamp(int(y), r.h)

	r.mu.Lock()
	if sess, ok := r.byPlayer[playerID]; ok {
		sess.cursorX = cx
		sess.cursorY = cy
	}
	r.mu.Unlock()

	return cx, cy
}

// Touch refreshes playerID's lastSeen timestamp in the repository. Per
// the dispatcher's contract every inbound message touches lastSeen;
// failures are logged and otherwise ignored, matching Remove's treatment
// of the same repository call.
func (r *Registry) Touch(ctx context.Context, playerID string) {
	if err := r.repo.TouchPlayer(ctx, playerID); err != nil {
		slog.Warn("session: touch failed", "player_id", playerID, "err", err)
	}
}

// UpdateCachedScore stores a session's cached score, refreshed from the
// repository's authoritative total rather than a locally accumulated
// delta.
func (r *Registry) UpdateCachedScore(playerID string, score int) {
	r.mu.Lock()
	if sess, ok := r.byPlayer[playerID]; ok {
		sess.score = score
	}
	r.mu.Unlock()
}

// Get returns the session for playerID, if any.
func (r *Registry) Get(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byPlayer[playerID]
	return sess, ok
}

// Lookup returns the playerId bound to handle, if any.
func (r *Registry) Lookup(handle Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handle]
	return id, ok
}

// SessionsInRegion returns a projection of every session whose cursor
// lies in reg, under the same wrap-aware containment test the repository
// uses. exclude, if non-empty, drops that single playerId from the
// result.
func (r *Registry) SessionsInRegion(reg region.Region, exclude string) []Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Projection
	for id, sess := range r.byPlayer {
		if id == exclude {
			continue
		}
		if sess.inRegion(reg) {
			out = append(out, sess.projection())
		}
	}
	return out
}

// Count reports the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer)
}

// AllHandles snapshots every active transport handle, used by graceful
// shutdown to close every connection before the store is closed.
func (r *Registry) AllHandles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.byHandle))
	for h := range r.byHandle {
		out = append(out, h)
	}
	return out
}

func clamp(v, mod int) int {
	if v < 0 {
		return 0
	}
	if v >= mod {
		return mod - 1
	}
	return v
}
