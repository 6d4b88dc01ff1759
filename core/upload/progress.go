package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
)

// State is a checkpoint in one file's upload.
type State int

const (
	StatePending State = iota
	StateBlobStored
	StateRecordCreated
	StateMetadataExtracted
	StateCoverUploaded
	StateRecordPatched
	StateError
)

var stateNames = map[State]string{
	StatePending:           "PENDING",
	StateBlobStored:        "BLOB_STORED",
	StateRecordCreated:     "RECORD_CREATED",
	StateMetadataExtracted: "METADATA_EXTRACTED",
	StateCoverUploaded:     "COVER_UPLOADED",
	StateRecordPatched:     "RECORD_PATCHED",
	StateError:             "ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for st, n := range stateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown upload state %q", name)
}

// Percent is the coarse progress shown for s; -1 marks a failed upload.
func (s State) Percent() int {
	switch s {
	case StatePending:
		return 0
	case StateBlobStored, StateRecordCreated:
		return 50
	case StateMetadataExtracted, StateCoverUploaded:
		return 75
	case StateRecordPatched:
		return 100
	default:
		return -1
	}
}

// Terminal reports whether no further transition is accepted.
func (s State) Terminal() bool {
	return s == StateRecordPatched || s == StateError
}

// Status is the latest known progress of one upload.
type Status struct {
	UploadID  string    `json:"upload_id"`
	FileName  string    `json:"file_name"`
	Kind      string    `json:"kind"`
	State     State     `json:"state"`
	Percent   int       `json:"percent"`
	RecordID  string    `json:"record_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker keeps per-upload progress and publishes every transition on the
// uploads topic.
type Tracker struct {
	mu        sync.RWMutex
	entries   map[string]*Status
	publisher realtime.Publisher
	now       func() time.Time
}

// NewTracker creates a tracker. publisher may be nil.
func NewTracker(publisher realtime.Publisher) *Tracker {
	return &Tracker{
		entries:   make(map[string]*Status),
		publisher: publisher,
		now:       time.Now,
	}
}

// Start registers uploadID at PENDING, replacing any earlier entry.
func (t *Tracker) Start(ctx context.Context, uploadID, fileName, kind string) {
	t.mu.Lock()
	st := &Status{UploadID: uploadID, FileName: fileName, Kind: kind, State: StatePending, UpdatedAt: t.now()}
	t.entries[uploadID] = st
	snapshot := *st
	t.mu.Unlock()

	t.publish(ctx, snapshot)
}

// Advance moves uploadID to state. Transitions out of a terminal state and
// for unknown ids are ignored.
func (t *Tracker) Advance(ctx context.Context, uploadID string, state State) {
	t.update(ctx, uploadID, func(st *Status) {
		st.State = state
	})
}

// Attach records the catalog id created for uploadID.
func (t *Tracker) Attach(uploadID, recordID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.entries[uploadID]; ok {
		st.RecordID = recordID
	}
}

// Fail moves uploadID to ERROR.
func (t *Tracker) Fail(ctx context.Context, uploadID string, err error) {
	t.update(ctx, uploadID, func(st *Status) {
		st.State = StateError
		if err != nil {
			st.Error = err.Error()
		}
	})
}

func (t *Tracker) update(ctx context.Context, uploadID string, apply func(*Status)) {
	t.mu.Lock()
	st, ok := t.entries[uploadID]
	if !ok || st.State.Terminal() {
		t.mu.Unlock()
		return
	}
	apply(st)
	st.Percent = st.State.Percent()
	st.UpdatedAt = t.now()
	snapshot := *st
	t.mu.Unlock()

	t.publish(ctx, snapshot)
}

// Get returns the status of one upload.
func (t *Tracker) Get(uploadID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.entries[uploadID]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Snapshot lists every known upload, oldest first.
func (t *Tracker) Snapshot() []Status {
	t.mu.RLock()
	out := make([]Status, 0, len(t.entries))
	for _, st := range t.entries {
		out = append(out, *st)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UploadID < out[j].UploadID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

// Prune drops terminal entries last updated before cutoff.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, st := range t.entries {
		if st.State.Terminal() && st.UpdatedAt.Before(cutoff) {
			delete(t.entries, id)
			n++
		}
	}
	return n
}

func (t *Tracker) publish(ctx context.Context, st Status) {
	if t.publisher == nil {
		return
	}
	ev := realtime.NewEvent(realtime.TopicUploads, realtime.EventProgress, st.UploadID, st)
	if err := t.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish upload progress",
			logger.String("uploadId", st.UploadID),
			logger.ErrorField(err))
	}
}
