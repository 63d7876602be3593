package retention

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ResourceArchiver flags one resource type's rows as archived.
type ResourceArchiver interface {
	ArchiveByAccount(ctx context.Context, accountID string, at time.Time) (int64, error)
}

// ContentArchiver flags posts, questions and media as archived.
type ContentArchiver interface {
	ArchiveByAccount(ctx context.Context, accountID string, at time.Time) error
}

// Archiver marks all of an account's mirrored data archived when the
// account disconnects, starting the retention clock.
type Archiver struct {
	locations ResourceArchiver
	reviews   ResourceArchiver
	content   ContentArchiver
}

func NewArchiver(locations, reviews ResourceArchiver, content ContentArchiver) *Archiver {
	return &Archiver{
		locations: locations,
		reviews:   reviews,
		content:   content,
	}
}

// ArchiveAccountData archives children first, locations last, so a
// partial failure never leaves archived locations with live children.
func (a *Archiver) ArchiveAccountData(ctx context.Context, accountID string, at time.Time) error {
	reviews, err := a.reviews.ArchiveByAccount(ctx, accountID, at)
	if err != nil {
		return fmt.Errorf("failed to archive reviews: %w", err)
	}

	if err := a.content.ArchiveByAccount(ctx, accountID, at); err != nil {
		return fmt.Errorf("failed to archive content: %w", err)
	}

	locations, err := a.locations.ArchiveByAccount(ctx, accountID, at)
	if err != nil {
		return fmt.Errorf("failed to archive locations: %w", err)
	}

	log.Printf("Archived account %s data: %d review(s), %d location(s)", accountID, reviews, locations)
	return nil
}
