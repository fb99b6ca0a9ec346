package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/reminderstore/postgres"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

// rowsStub implements pgx.Rows over a fixed slice of rows.
type rowsStub struct {
	data [][]any
	i    int
	err  error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return r.data[r.i-1], nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }
func (r *rowsStub) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *rowsStub) Scan(dest ...any) error {
	row := r.data[r.i-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*int64) = row[1].(int64)
	*dest[2].(*time.Time) = row[2].(time.Time)
	*dest[3].(*string) = row[3].(string)
	*dest[4].(*string) = row[4].(string)
	return nil
}

// poolStub implements postgres.PgxPool and records Exec calls.
type poolStub struct {
	execErr  error
	queryErr error
	rows     *rowsStub
	sqls     []string
	args     [][]any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.sqls = append(p.sqls, sql)
	p.args = append(p.args, args)
	return pgconn.CommandTag{}, p.execErr
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func TestStore_List(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	pool := &poolStub{rows: &rowsStub{data: [][]any{
		{"100001", int64(5), at, "drink", "DAILY"},
		{"100002", int64(6), at.Add(time.Hour), "", "ONE_TIME"},
	}}}
	got, err := postgres.New(pool).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Reminder{ID: "100001", ChatID: 5, Time: at, Note: "drink", Type: domain.ReminderDaily}, got[0])
	assert.Equal(t, domain.ReminderOneTime, got[1].Type)
}

func TestStore_ListErrors(t *testing.T) {
	_, err := postgres.New(&poolStub{queryErr: errors.New("conn refused")}).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=reminders.list")

	_, err = postgres.New(&poolStub{rows: &rowsStub{err: errors.New("broken")}}).List(context.Background())
	require.Error(t, err)
}

func TestStore_Add(t *testing.T) {
	pool := &poolStub{}
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	err := postgres.New(pool).Add(context.Background(), domain.Reminder{ID: "123456", ChatID: 9, Time: at, Note: "n", Type: domain.ReminderOneTime})
	require.NoError(t, err)
	require.Len(t, pool.args, 1)
	args := pool.args[0]
	_, isUUID := args[0].(uuid.UUID)
	assert.True(t, isUUID)
	assert.Equal(t, "123456", args[1])
	assert.Equal(t, int64(9), args[2])
	assert.Equal(t, at.UTC(), args[3])
	assert.Contains(t, pool.sqls[0], "ON CONFLICT (id)")
}

func TestStore_AddInvalid(t *testing.T) {
	err := postgres.New(&poolStub{}).Add(context.Background(), domain.Reminder{ID: "1", Type: "X"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_DeleteAndSchema(t *testing.T) {
	pool := &poolStub{}
	s := postgres.New(pool)
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.Delete(context.Background(), "42"))
	require.Len(t, pool.sqls, 2)
	assert.Contains(t, pool.sqls[0], "CREATE TABLE IF NOT EXISTS reminders")
	assert.Equal(t, []any{"42"}, pool.args[1])

	pool.execErr = errors.New("down")
	err := s.Delete(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=reminders.delete")
}
