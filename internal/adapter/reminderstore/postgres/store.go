// Package postgres stores reminders in a PostgreSQL table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// PgxPool is the subset of pgxpool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `CREATE TABLE IF NOT EXISTS reminders (
	row_id     UUID PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	chat_id    BIGINT NOT NULL,
	fire_at    TIMESTAMPTZ NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a domain.ReminderStore over Postgres.
type Store struct{ Pool PgxPool }

// New constructs a Store with the given pool.
func New(p PgxPool) *Store { return &Store{Pool: p} }

func span(ctx context.Context, name, op string) (context.Context, func()) {
	ctx, s := otel.Tracer("repo.reminders").Start(ctx, name)
	s.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", "reminders"),
	)
	return ctx, func() { s.End() }
}

// EnsureSchema creates the reminders table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("op=reminders.schema: %w", err)
	}
	return nil
}

// List returns every reminder ordered by fire time.
func (s *Store) List(ctx context.Context) ([]domain.Reminder, error) {
	ctx, end := span(ctx, "reminders.List", "SELECT")
	defer end()
	rows, err := s.Pool.Query(ctx, `SELECT id, chat_id, fire_at, note, type FROM reminders ORDER BY fire_at`)
	if err != nil {
		return nil, fmt.Errorf("op=reminders.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Reminder
	for rows.Next() {
		var (
			r   domain.Reminder
			typ string
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Time, &r.Note, &typ); err != nil {
			return nil, fmt.Errorf("op=reminders.list: %w", err)
		}
		r.Type = domain.ReminderType(typ)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=reminders.list: %w", err)
	}
	return out, nil
}

// Add inserts r, replacing an existing row with the same id.
func (s *Store) Add(ctx context.Context, r domain.Reminder) error {
	ctx, end := span(ctx, "reminders.Add", "INSERT")
	defer end()
	if r.ID == "" || !r.Type.Valid() {
		return fmt.Errorf("op=reminders.add: %w", domain.ErrInvalidArgument)
	}
	q := `INSERT INTO reminders (row_id, id, chat_id, fire_at, note, type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET chat_id=EXCLUDED.chat_id, fire_at=EXCLUDED.fire_at, note=EXCLUDED.note, type=EXCLUDED.type`
	_, err := s.Pool.Exec(ctx, q, uuid.New(), r.ID, r.ChatID, r.Time.UTC(), r.Note, string(r.Type), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=reminders.add: %w", err)
	}
	return nil
}

// Delete removes the reminder with id. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, end := span(ctx, "reminders.Delete", "DELETE")
	defer end()
	if _, err := s.Pool.Exec(ctx, `DELETE FROM reminders WHERE id=$1`, id); err != nil {
		return fmt.Errorf("op=reminders.delete: %w", err)
	}
	return nil
}

var _ domain.ReminderStore = (*Store)(nil)
