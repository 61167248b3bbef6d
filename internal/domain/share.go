package domain

// QueuedShare represents one pending "share a link to a trip" operation that
// failed its initial delivery and is waiting to be retried.
type QueuedShare struct {
	// ID is an opaque unique identifier generated at enqueue time. It is the
	// handle used for dequeue, update, and lookup; it is NOT the dedup key.
	ID string `json:"id"`

	// URL is the shared link. It is the canonical identity key: at most one
	// live record per distinct URL exists in the queue at any time.
	URL string `json:"url"`

	// Source tags where the share came from (e.g. "clipboard",
	// "share-extension", "deep-link").
	Source string `json:"source"`

	// CreatedAt is the epoch-millisecond timestamp of the original enqueue.
	// It never changes after creation and is the basis for expiry.
	CreatedAt int64 `json:"createdAt"`

	// RetryCount is the number of recorded retry attempts. It only ever grows.
	RetryCount int `json:"retryCount"`

	// LastRetryAt is the epoch-millisecond timestamp of the most recent retry
	// attempt, or nil if the share has never been attempted.
	LastRetryAt *int64 `json:"lastRetryAt"`

	// Error holds the last-known failure message, if any.
	Error string `json:"error,omitempty"`

	// Optional application payload, opaque to the queue's own logic.
	TripID    string `json:"tripId,omitempty"`
	EntryType string `json:"entryType,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ShareRequest carries the fields a caller provides when enqueueing a share.
// Queue bookkeeping fields (ID, RetryCount, LastRetryAt, Error) are owned by
// the queue itself and cannot be supplied here.
type ShareRequest struct {
	URL    string `json:"url"`
	Source string `json:"source"`

	// CreatedAt is the epoch-millisecond time the share was captured. Zero
	// means "now".
	CreatedAt int64 `json:"createdAt,omitempty"`

	TripID    string `json:"tripId,omitempty"`
	EntryType string `json:"entryType,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// SharePatch is a partial update for a queued share. Only the fields a caller
// may legally mutate are representable; a nil field means "leave unchanged".
type SharePatch struct {
	Source    *string `json:"source,omitempty"`
	TripID    *string `json:"tripId,omitempty"`
	EntryType *string `json:"entryType,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Apply merges the patch into the share, leaving nil fields untouched.
func (p SharePatch) Apply(s *QueuedShare) {
	if p.Source != nil {
		s.Source = *p.Source
	}
	if p.TripID != nil {
		s.TripID = *p.TripID
	}
	if p.EntryType != nil {
		s.EntryType = *p.EntryType
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
}

// FlushResult aggregates the outcome of one flush cycle.
type FlushResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
