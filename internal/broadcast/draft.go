package broadcast

import (
	"sync"
	"time"
)

// Draft is a message an operator is composing before sending: text,
// chosen targets, and the inter-send delay. Explicit typed state instead
// of fields stashed on the connection.
type Draft struct {
	Text      string
	Targets   []int64
	Delay     time.Duration
	CreatedAt time.Time
}

// DraftRegistry keeps at most one draft per owner identity.
type DraftRegistry struct {
	mu     sync.Mutex
	drafts map[int64]Draft
}

// NewDraftRegistry creates an empty registry.
func NewDraftRegistry() *DraftRegistry {
	return &DraftRegistry{drafts: make(map[int64]Draft)}
}

// Set stores the owner's draft, replacing any previous one.
func (r *DraftRegistry) Set(ownerID int64, d Draft) {
	d.CreatedAt = time.Now()
	r.mu.Lock()
	r.drafts[ownerID] = d
	r.mu.Unlock()
}

// Get returns the owner's draft.
func (r *DraftRegistry) Get(ownerID int64) (Draft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[ownerID]
	return d, ok
}

// Clear discards the owner's draft.
func (r *DraftRegistry) Clear(ownerID int64) {
	r.mu.Lock()
	delete(r.drafts, ownerID)
	r.mu.Unlock()
}
