package game

import "sync"

// ReplayEntry records one applied action and the state fingerprint that
// resulted from it.
type ReplayEntry struct {
	Action   string   `json:"action"`
	Round    int      `json:"round"`
	Phase    string   `json:"phase"`
	Checksum Checksum `json:"checksum"`
}

// Replay is the ordered record of a match: one entry per applied engine
// transition. Because the engine is deterministic, replaying the same
// action sequence against the same seed reproduces every checksum. The
// cursor supports stepping through the record for playback.
type Replay struct {
	RoomCode string
	Entries  []ReplayEntry
	cursor   int
	mu       sync.RWMutex
}

// NewReplay creates an empty replay record for a room.
func NewReplay(roomCode string) *Replay {
	return &Replay{
		RoomCode: roomCode,
		Entries:  make([]ReplayEntry, 0),
	}
}

// Record appends the fingerprint of the state after an applied action.
func (r *Replay) Record(action string, g *GameState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Entries = append(r.Entries, ReplayEntry{
		Action:   action,
		Round:    g.Round,
		Phase:    g.Phase.String(),
		Checksum: g.Checksum(),
	})
}

// Size returns the number of recorded entries.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Entries)
}

// At returns the entry at the given index.
func (r *Replay) At(i int) (ReplayEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.Entries) {
		return ReplayEntry{}, false
	}
	return r.Entries[i], true
}

// Start resets the playback cursor to the beginning.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cursor = 0
}

// Next returns the entry under the cursor and advances it.
func (r *Replay) Next() (ReplayEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(r.Entries) {
		return ReplayEntry{}, false
	}
	entry := r.Entries[r.cursor]
	r.cursor++
	return entry, true
}

// Previous steps the cursor back and returns the entry it lands on.
func (r *Replay) Previous() (ReplayEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor == 0 {
		return ReplayEntry{}, false
	}
	r.cursor--
	return r.Entries[r.cursor], true
}

// Last returns the most recent entry.
func (r *Replay) Last() (ReplayEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.Entries) == 0 {
		return ReplayEntry{}, false
	}
	return r.Entries[len(r.Entries)-1], true
}
