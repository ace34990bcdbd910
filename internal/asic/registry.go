package asic

import "sync"

// Slots is the fixed number of addressable local job ids: 128 possible
// values, but only multiples of 8 are ever assigned (the low 3 bits are
// reserved for the small-core/midstate index a result frame returns).
const Slots = 128

// JobContext is what the registry remembers about a dispatched job so a
// later result frame can be resolved back to pool-submittable data.
type JobContext struct {
	NotificationJobID string
	ExtraNonce2       []byte
	Version           uint32
	PoolDifficulty    float64
	Epoch             uint64
	// MerkleRootLE and PrevHashLE are the little-endian-for-hashing forms
	// of the header fields the chip was given, kept so a later result can
	// be re-verified by rebuilding the 80-byte header exactly as sent.
	MerkleRootLE [32]byte
	PrevHashLE   [32]byte
	NTime        uint32
	NBits        uint32
}

// Registry is ActiveJobRegistry: the fixed-size table of in-flight jobs
// indexed by local_job_id, guarded by a single mutex as required by §4.5
// (valid[] and active[] share one lock; active[] is read only after a
// valid[] check under that same lock).
type Registry struct {
	mu     sync.Mutex
	valid  [Slots]bool
	active [Slots]JobContext
	lastID byte
}

// NewRegistry returns an empty registry with no live slots.
func NewRegistry() *Registry {
	return &Registry{}
}

// NextID assigns the next local_job_id: (prev+8) mod 128, per §4.2 "Job
// send".
func (r *Registry) NextID() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID = (r.lastID + 8) % Slots
	return r.lastID
}

// Install frees any prior occupant of id and stores ctx as the new entry,
// marking the slot valid. Must be called before the job is transmitted.
func (r *Registry) Install(id byte, ctx JobContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = ctx
	r.valid[id] = true
}

// Lookup returns the context for id and whether the slot is currently
// valid. A result frame referencing an invalid slot must be discarded.
func (r *Registry) Lookup(id byte) (JobContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid[id] {
		return JobContext{}, false
	}
	return r.active[id], true
}

// Invalidate marks id as no longer live, e.g. when its epoch is superseded
// by a clean_jobs abandonment.
func (r *Registry) Invalidate(id byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid[id] = false
}

// InvalidateEpoch marks every slot whose context predates epoch as no
// longer live. Used when clean_jobs raises the pipeline's abandon epoch.
func (r *Registry) InvalidateEpoch(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.valid {
		if r.valid[i] && r.active[i].Epoch < epoch {
			r.valid[i] = false
		}
	}
}
