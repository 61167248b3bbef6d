package ingest

import (
	"context"

	"linkrelay/internal/domain"
)

// Ingestor defines the interface for delivering a queued share to the remote
// ingestion API. It matches the queue's retry contract: true means the share
// was accepted and can be dropped, false means it should be retried later.
type Ingestor interface {
	Deliver(ctx context.Context, share domain.QueuedShare) (bool, error)
}
