package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityLogs is the append-only store for audit entries. There is no
// update path on purpose.
type ActivityLogs interface {
	Append(ctx context.Context, entry *ActivityLogEntry) error
	AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityLogEntry) error
	List(ctx context.Context, filter ActivityFilter) ([]*ActivityLogEntry, int, error)
}

// ActivityFilter narrows and pages audit listings.
type ActivityFilter struct {
	ActorID uuid.UUID
	Action  ActivityAction
	Limit   int
	Offset  int
}

type activityLogsRepo struct {
	repo repository.Repository[*ActivityLogEntry]
	db   *bun.DB
}

var _ ActivityLogs = (*activityLogsRepo)(nil)

func NewActivityLogsRepository(db *bun.DB) ActivityLogs {
	repo := repository.NewRepository[*ActivityLogEntry](db, repository.ModelHandlers[*ActivityLogEntry]{
		NewRecord: func() *ActivityLogEntry { return &ActivityLogEntry{} },
		GetID: func(e *ActivityLogEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *ActivityLogEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &activityLogsRepo{
		repo: repo,
		db:   db,
	}
}

func (r *activityLogsRepo) Append(ctx context.Context, entry *ActivityLogEntry) error {
	return r.AppendTx(ctx, r.db, entry)
}

func (r *activityLogsRepo) AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if err := entry.Validate(); err != nil {
		return err
	}

	_, err := r.repo.CreateTx(ctx, tx, entry)
	return err
}

func (r *activityLogsRepo) List(ctx context.Context, filter ActivityFilter) ([]*ActivityLogEntry, int, error) {
	var records []*ActivityLogEntry

	q := r.db.NewSelect().Model(&records)

	if filter.ActorID != uuid.Nil {
		q = q.Where("?TableAlias.actor_id = ?", filter.ActorID)
	}

	if filter.Action != "" {
		q = q.Where("?TableAlias.action = ?", filter.Action)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	total, err := q.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
