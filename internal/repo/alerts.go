package repo

import (
	"context"
	"time"

	"github.com/hamed0406/llmuptime/internal/domain"
)

// AlertRecord holds the last status we saw for a provider and the last time
// we sent a notification about it (used for cooldown).
type AlertRecord struct {
	Provider   string
	LastStatus domain.Status
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, provider string) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	SetAlert(ctx context.Context, provider string, status domain.Status, sentAt time.Time) error
}
