package watch

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

const trackerShardCount = 32

// SessionTracker holds the furthest-watched position per playback session.
// State lives only in this process: a restart forgets all sessions, and the
// audit log in the event store remains the source of truth.
//
// Sessions are sharded by key so concurrent playback sessions update
// independently. Within a shard the max update is applied under the shard
// lock, so a lower position can never overwrite a higher one.
type SessionTracker struct {
	shards  [trackerShardCount]trackerShard
	idleTTL time.Duration
}

type trackerShard struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	maxPosition float64
	lastSeen    time.Time
}

// NewSessionTracker creates a tracker that evicts sessions idle longer than
// idleTTL once Run is started.
func NewSessionTracker(idleTTL time.Duration) *SessionTracker {
	t := &SessionTracker{idleTTL: idleTTL}
	for i := range t.shards {
		t.shards[i].sessions = make(map[string]*sessionState)
	}
	return t
}

func (t *SessionTracker) shard(sessionID string) *trackerShard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &t.shards[h.Sum32()%trackerShardCount]
}

// RecordPosition raises the session's furthest position to position if it
// exceeds the current value.
func (t *SessionTracker) RecordPosition(sessionID string, position float64) {
	shard := t.shard(sessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		shard.sessions[sessionID] = state
	}
	if position > state.maxPosition {
		state.maxPosition = position
	}
	state.lastSeen = time.Now()
}

// MaxPosition returns the furthest position seen for the session, or 0 for
// unknown sessions.
func (t *SessionTracker) MaxPosition(sessionID string) float64 {
	shard := t.shard(sessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if state, ok := shard.sessions[sessionID]; ok {
		return state.maxPosition
	}
	return 0
}

// Clear drops the tracked state for a session.
func (t *SessionTracker) Clear(sessionID string) {
	shard := t.shard(sessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.sessions, sessionID)
}

// Len reports the number of tracked sessions.
func (t *SessionTracker) Len() int {
	total := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		total += len(shard.sessions)
		shard.mu.Unlock()
	}
	return total
}

// Run evicts idle sessions until ctx is cancelled. Abandoned sessions
// (players that never send SESSION_END) would otherwise accumulate forever.
func (t *SessionTracker) Run(ctx context.Context) {
	interval := t.idleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evictIdle(time.Now().Add(-t.idleTTL))
			metrics.SetTrackedSessions(t.Len())
		}
	}
}

func (t *SessionTracker) evictIdle(cutoff time.Time) {
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		for id, state := range shard.sessions {
			if state.lastSeen.Before(cutoff) {
				delete(shard.sessions, id)
			}
		}
		shard.mu.Unlock()
	}
}
