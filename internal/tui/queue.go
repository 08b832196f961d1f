package tui

import (
	"context"

	"github.com/yplay/yplay/internal/cache"
	apperrors "github.com/yplay/yplay/internal/errors"
)

// entryQueue plays cached library entries in list order.
type entryQueue struct {
	entries []*cache.Entry
}

func (q *entryQueue) Len() int { return len(q.entries) }

func (q *entryQueue) EntryAt(ctx context.Context, i int) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(q.entries) {
		return nil, apperrors.Validation("library index %d out of range", i)
	}
	return q.entries[i], nil
}
