package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-live-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:session_archive,alias:sa"`

	ID           string          `bun:"id,pk,type:uuid"`
	Code         string          `bun:"code,notnull"`
	QuizRef      string          `bun:"quiz_ref,notnull"`
	HostID       string          `bun:"host_id,notnull"`
	Status       string          `bun:"status,notnull"`
	FinishReason string          `bun:"finish_reason,nullzero"`
	FinishedAt   *time.Time      `bun:"finished_at"`
	Data         *domain.Session `bun:"data,type:jsonb,notnull"`
}

// SessionArchive stores finished sessions so history survives the live store's TTL.
type SessionArchive struct {
	db *bun.DB
}

func NewSessionArchive(db *bun.DB) *SessionArchive {
	return &SessionArchive{db: db}
}

// OpenDB opens a bun handle on the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (a *SessionArchive) Save(ctx context.Context, s domain.Session) error {
	snapshot := s.Clone()
	row := &sessionRow{
		ID:           s.ID,
		Code:         s.Code,
		QuizRef:      s.QuizRef,
		HostID:       s.HostID,
		Status:       string(s.Status),
		FinishReason: s.FinishReason,
		FinishedAt:   s.FinishedAt,
		Data:         &snapshot,
	}
	_, err := a.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("finish_reason = EXCLUDED.finish_reason").
		Set("finished_at = EXCLUDED.finished_at").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: archive session %s: %v", domain.ErrUpstream, s.ID, err)
	}
	return nil
}

func (a *SessionArchive) Load(ctx context.Context, id string) (domain.Session, error) {
	row := new(sessionRow)
	err := a.db.NewSelect().Model(row).Where("sa.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: id %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: load archived session %s: %v", domain.ErrUpstream, id, err)
	}
	if row.Data == nil {
		return domain.Session{}, fmt.Errorf("%w: archived session %s has no data", domain.ErrUpstream, id)
	}
	return *row.Data, nil
}

func (a *SessionArchive) Delete(ctx context.Context, id string) error {
	_, err := a.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete archived session %s: %v", domain.ErrUpstream, id, err)
	}
	return nil
}
