package queue

import (
	"context"

	"github.com/sirupsen/logrus"

	"linkrelay/internal/domain"
)

// RetryFunc attempts to re-deliver one queued share to the remote ingestion
// endpoint. It returns true when the share was delivered and can be dropped
// from the queue, and false when delivery failed but should be retried
// later. A returned error is treated the same as false.
type RetryFunc func(ctx context.Context, share domain.QueuedShare) (bool, error)

// Flusher drains the queue for one flush cycle. It owns no timer and no
// goroutine: callers invoke Flush from whatever external trigger they have
// (startup, a connectivity event, an interval tick, an explicit request).
type Flusher struct {
	queue *Store
	log   logrus.FieldLogger
}

// NewFlusher creates a Flusher over the given queue.
func NewFlusher(queue *Store, logger logrus.FieldLogger) *Flusher {
	return &Flusher{
		queue: queue,
		log:   logger.WithField("component", "queue_flusher"),
	}
}

// Flush runs one flush cycle: it clears expired shares, then repeatedly
// selects the next eligible share and hands it to retry, recording each
// outcome back into the queue. A nil retry makes Flush an immediate no-op,
// so callers can invoke it unconditionally.
//
// The loop terminates naturally: a share that just failed is inside its new
// backoff window and will not be re-selected in the same cycle, so each
// currently-eligible share is processed at most once. Individual retry
// failures are recorded and never abort the cycle; storage errors do.
func (f *Flusher) Flush(ctx context.Context, retry RetryFunc) (domain.FlushResult, error) {
	var result domain.FlushResult
	if retry == nil {
		return result, nil
	}

	if err := f.queue.ClearExpired(ctx); err != nil {
		return result, err
	}

	for {
		share, err := f.queue.NextRetryable(ctx)
		if err != nil {
			return result, err
		}
		if share == nil {
			break
		}

		log := f.log.WithFields(logrus.Fields{
			"share_id":    share.ID,
			"url":         share.URL,
			"retry_count": share.RetryCount,
		})

		ok, retryErr := retry(ctx, *share)
		if ok {
			if err := f.queue.Dequeue(ctx, share.ID); err != nil {
				return result, err
			}
			result.Succeeded++
			log.Info("Share delivered")
			continue
		}

		msg := "retry attempt failed"
		if retryErr != nil {
			msg = retryErr.Error()
			log.WithError(retryErr).Warn("Share retry failed")
		} else {
			log.Warn("Share retry rejected")
		}
		if err := f.queue.MarkRetryAttempt(ctx, share.ID, msg); err != nil {
			return result, err
		}
		result.Failed++
	}

	f.log.WithFields(logrus.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Flush cycle complete")
	return result, nil
}
