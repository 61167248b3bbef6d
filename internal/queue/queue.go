package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkrelay/internal/domain"
	"linkrelay/internal/storage"
)

const (
	// DefaultStorageKey is the key the whole serialized queue lives under.
	// The queue is always persisted as one JSON array; there is no
	// per-record key.
	DefaultStorageKey = "share_retry_queue"

	// shareTTL is how long a queued share stays alive after its original
	// enqueue. Retry activity does not extend it.
	shareTTL = 7 * 24 * time.Hour

	// maxRetries is the retry budget per share. A share that reaches it is
	// kept in storage for visibility but never selected again.
	maxRetries = 10

	// baseRetryDelay seeds the exponential backoff: a share with retryCount
	// n must wait baseRetryDelay * 2^n after its last attempt.
	baseRetryDelay = 5 * time.Second
)

// Store is the durable share-retry queue. Every operation does a full
// read-modify-write cycle against the single serialized blob; the backing
// KeyValueStore is the only shared mutable state.
type Store struct {
	kv    storage.KeyValueStore
	key   string
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

// Option customizes a Store. Used by tests to control time and identity.
type Option func(*Store)

// WithStorageKey overrides the key the serialized queue is stored under.
func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the record-ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a share-retry queue on top of the given key-value store.
func NewStore(kv storage.KeyValueStore, logger logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		key:   DefaultStorageKey,
		log:   logger.WithField("component", "share_queue"),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load reads and deserializes the full queue. An absent blob is an empty
// queue.
func (s *Store) load(ctx context.Context) ([]domain.QueuedShare, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load share queue: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var shares []domain.QueuedShare
	if err := json.Unmarshal(raw, &shares); err != nil {
		s.log.WithError(err).Error("Failed to unmarshal share queue blob")
		return nil, fmt.Errorf("failed to decode share queue: %w", err)
	}
	return shares, nil
}

// save serializes the full queue and atomically replaces the stored blob.
func (s *Store) save(ctx context.Context, shares []domain.QueuedShare) error {
	raw, err := json.Marshal(shares)
	if err != nil {
		return fmt.Errorf("failed to encode share queue: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("failed to persist share queue: %w", err)
	}
	return nil
}

// Enqueue adds a failed share to the queue, or merges it into the existing
// record for the same URL. On a merge the record keeps its ID, retry count,
// last-attempt time, and error, but takes the new request's source, capture
// time, and payload fields: re-sharing a link refreshes its bookkeeping
// without resetting its retry budget.
//
// Enqueue is best-effort and never returns an error. It is called from the
// caller's own failure-handling path, where a second failure must not crash
// the share flow; storage problems are logged and swallowed. The returned
// record reflects what the queue attempted to persist.
func (s *Store) Enqueue(ctx context.Context, req domain.ShareRequest) domain.QueuedShare {
	log := s.log.WithFields(logrus.Fields{
		"url":    req.URL,
		"source": req.Source,
	})

	shares, err := s.load(ctx)
	if err != nil {
		// Treat an unreadable queue as empty rather than fail the enqueue.
		log.WithError(err).Warn("Could not read share queue, treating as empty")
		shares = nil
	}

	createdAt := req.CreatedAt
	if createdAt == 0 {
		createdAt = s.now().UnixMilli()
	}

	var share domain.QueuedShare
	merged := false
	for i := range shares {
		if shares[i].URL != req.URL {
			continue
		}
		shares[i].Source = req.Source
		shares[i].CreatedAt = createdAt
		shares[i].TripID = req.TripID
		shares[i].EntryType = req.EntryType
		shares[i].Notes = req.Notes
		share = shares[i]
		merged = true
		break
	}

	if !merged {
		share = domain.QueuedShare{
			ID:        s.newID(),
			URL:       req.URL,
			Source:    req.Source,
			CreatedAt: createdAt,
			TripID:    req.TripID,
			EntryType: req.EntryType,
			Notes:     req.Notes,
		}
		shares = append(shares, share)
	}

	if err := s.save(ctx, shares); err != nil {
		log.WithError(err).Warn("Could not persist share queue, share dropped")
		return share
	}

	log.WithFields(logrus.Fields{
		"share_id": share.ID,
		"merged":   merged,
	}).Info("Share queued for retry")
	return share
}

// PendingShares returns all non-expired shares in stored (insertion) order.
// Expired records are excluded from the result but left in storage; removal
// is ClearExpired's job.
func (s *Store) PendingShares(ctx context.Context) ([]domain.QueuedShare, error) {
	shares, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	nowMs := s.now().UnixMilli()
	var pending []domain.QueuedShare
	for _, share := range shares {
		if !expired(share, nowMs) {
			pending = append(pending, share)
		}
	}
	return pending, nil
}

// PendingShareCount returns the number of non-expired shares.
func (s *Store) PendingShareCount(ctx context.Context) (int, error) {
	pending, err := s.PendingShares(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ShareByID returns the share with the given id, or nil if absent.
func (s *Store) ShareByID(ctx context.Context, id string) (*domain.QueuedShare, error) {
	shares, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range shares {
		if shares[i].ID == id {
			share := shares[i]
			return &share, nil
		}
	}
	return nil, nil
}

// Dequeue removes the share with the given id. Removing an unknown id is a
// no-op, not an error, and performs no storage write.
func (s *Store) Dequeue(ctx context.Context, id string) error {
	shares, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := shares[:0]
	for _, share := range shares {
		if share.ID != id {
			kept = append(kept, share)
		}
	}
	if len(kept) == len(shares) {
		return nil
	}
	if err := s.save(ctx, kept); err != nil {
		return err
	}
	s.log.WithField("share_id", id).Info("Share dequeued")
	return nil
}

// Update merges the patch into the share with the given id, preserving all
// other fields. An unknown id is a no-op with no storage write.
func (s *Store) Update(ctx context.Context, id string, patch domain.SharePatch) error {
	shares, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range shares {
		if shares[i].ID != id {
			continue
		}
		patch.Apply(&shares[i])
		return s.save(ctx, shares)
	}
	return nil
}

// MarkRetryAttempt records one retry attempt against the share with the
// given id: retryCount is incremented, lastRetryAt set to now, and, when
// errMsg is non-empty, the share's error replaced with it. An unknown id is
// a no-op with no storage write.
func (s *Store) MarkRetryAttempt(ctx context.Context, id string, errMsg string) error {
	shares, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range shares {
		if shares[i].ID != id {
			continue
		}
		nowMs := s.now().UnixMilli()
		shares[i].RetryCount++
		shares[i].LastRetryAt = &nowMs
		if errMsg != "" {
			shares[i].Error = errMsg
		}
		s.log.WithFields(logrus.Fields{
			"share_id":    id,
			"retry_count": shares[i].RetryCount,
		}).Debug("Recorded retry attempt")
		return s.save(ctx, shares)
	}
	return nil
}

// NextRetryable returns the first share, in stored order, that is eligible
// for a retry attempt right now, or nil if none is. A share is eligible when
// it is not expired, has retry budget left, and its backoff window has
// elapsed (a never-attempted share is immediately eligible). The tie-break
// is deliberately FIFO-among-eligible, not soonest-eligible-first.
func (s *Store) NextRetryable(ctx context.Context) (*domain.QueuedShare, error) {
	shares, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	nowMs := s.now().UnixMilli()
	for i := range shares {
		share := shares[i]
		if expired(share, nowMs) {
			continue
		}
		if share.RetryCount >= maxRetries {
			continue
		}
		if share.LastRetryAt != nil {
			wait := backoffDelay(share.RetryCount).Milliseconds()
			if nowMs-*share.LastRetryAt < wait {
				continue
			}
		}
		return &share, nil
	}
	return nil, nil
}

// ClearExpired removes every expired share. The blob is rewritten only when
// something was actually removed.
func (s *Store) ClearExpired(ctx context.Context) error {
	shares, err := s.load(ctx)
	if err != nil {
		return err
	}
	nowMs := s.now().UnixMilli()
	kept := shares[:0]
	for _, share := range shares {
		if !expired(share, nowMs) {
			kept = append(kept, share)
		}
	}
	if len(kept) == len(shares) {
		return nil
	}
	if err := s.save(ctx, kept); err != nil {
		return err
	}
	s.log.WithField("removed", len(shares)-len(kept)).Info("Expired shares cleared")
	return nil
}

// ClearAll deletes the entire stored queue unconditionally.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear share queue: %w", err)
	}
	s.log.Info("Share queue cleared")
	return nil
}

// expired reports whether the share's age has reached the TTL.
func expired(share domain.QueuedShare, nowMs int64) bool {
	return nowMs-share.CreatedAt >= shareTTL.Milliseconds()
}

// backoffDelay returns the wait required after the n-th recorded attempt.
func backoffDelay(retryCount int) time.Duration {
	return baseRetryDelay * (1 << retryCount)
}
