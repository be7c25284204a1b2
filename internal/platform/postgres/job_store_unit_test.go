package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traindeck/traindeck-api/internal/domain"
	"github.com/traindeck/traindeck-api/internal/store"
)

// mockResult implements sql.Result for unit tests.
type mockResult struct {
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockDBTX records executed statements and returns canned results.
// QueryRowContext cannot be faked without a live connection (*sql.Row has
// no exported constructor), so row-returning paths are covered by
// integration tests against a real database.
type mockDBTX struct {
	execQuery string
	execArgs  []any
	execErr   error
	execRes   sql.Result
}

func (m *mockDBTX) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.execQuery = query
	m.execArgs = args
	if m.execErr != nil {
		return nil, m.execErr
	}
	if m.execRes != nil {
		return m.execRes, nil
	}
	return mockResult{rowsAffected: 1}, nil
}

func (m *mockDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func TestNewPostgresJobStore(t *testing.T) {
	s := NewPostgresJobStore(&mockDBTX{})
	assert.NotNil(t, s)
	assert.NotNil(t, s.db)
}

func TestCreateJob(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()

	t.Run("inserts_all_columns", func(t *testing.T) {
		db := &mockDBTX{}
		s := NewPostgresJobStore(db)

		job, err := domain.NewJob(userID, orgID, domain.JobTypeTranscription,
			[]byte(`{"audio_url":"x"}`),
			domain.WithPriority(10),
			domain.WithEntityRef("training", "t-1"))
		require.NoError(t, err)

		require.NoError(t, s.CreateJob(context.Background(), job))

		assert.Contains(t, db.execQuery, "INSERT INTO jobs")
		require.Len(t, db.execArgs, 14)
		assert.Equal(t, job.ID, db.execArgs[0])
		assert.Equal(t, domain.JobTypeTranscription, db.execArgs[3])
		assert.Equal(t, domain.JobStatusPending, db.execArgs[4])
		assert.Equal(t, 10, db.execArgs[5])
	})

	t.Run("rejects_invalid_job", func(t *testing.T) {
		s := NewPostgresJobStore(&mockDBTX{})

		err := s.CreateJob(context.Background(), &domain.Job{})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("wraps_database_error", func(t *testing.T) {
		db := &mockDBTX{execErr: errors.New("connection refused")}
		s := NewPostgresJobStore(db)

		job, err := domain.NewJob(userID, orgID, domain.JobTypeTranscription,
			[]byte(`{"audio_url":"x"}`))
		require.NoError(t, err)

		err = s.CreateJob(context.Background(), job)
		require.Error(t, err)

		var storeErr *store.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "job", storeErr.Entity)
		assert.Equal(t, "create", storeErr.Operation)
	})
}

func TestUpdateJobQueryConstruction(t *testing.T) {
	jobID := uuid.New()

	t.Run("empty_update_is_noop", func(t *testing.T) {
		db := &mockDBTX{}
		s := NewPostgresJobStore(db)

		require.NoError(t, s.UpdateJob(context.Background(), jobID, store.JobUpdate{}))
		assert.Empty(t, db.execQuery)
	})

	t.Run("progress_only", func(t *testing.T) {
		db := &mockDBTX{}
		s := NewPostgresJobStore(db)

		pct := 40
		msg := "transcribing audio"
		err := s.UpdateJob(context.Background(), jobID, store.JobUpdate{
			ProgressPercent: &pct,
			ProgressMessage: &msg,
		})
		require.NoError(t, err)

		assert.Contains(t, db.execQuery, "progress_percent")
		assert.Contains(t, db.execQuery, "progress_message")
		assert.NotContains(t, db.execQuery, "status =")
		assert.Contains(t, db.execQuery,
			"status NOT IN ('completed', 'failed', 'cancelled')")
		assert.Equal(t, []any{40, "transcribing audio", jobID}, db.execArgs)
	})

	t.Run("terminal_status_sets_completed_at", func(t *testing.T) {
		db := &mockDBTX{}
		s := NewPostgresJobStore(db)

		status := domain.JobStatusCompleted
		err := s.UpdateJob(context.Background(), jobID, store.JobUpdate{
			Status: &status,
			Result: []byte(`{"transcript":"hello"}`),
		})
		require.NoError(t, err)

		assert.Contains(t, db.execQuery, "completed_at = now()")
		assert.Contains(t, db.execQuery, "result =")
	})
}

func TestScheduleRetryGuards(t *testing.T) {
	db := &mockDBTX{}
	s := NewPostgresJobStore(db)

	next := time.Now().UTC().Add(5 * time.Minute)
	require.NoError(t, s.ScheduleRetry(context.Background(), uuid.New(), next))

	assert.Contains(t, db.execQuery, "retry_count = retry_count + 1")
	assert.Contains(t, db.execQuery, "retry_count < max_retries")
	assert.Contains(t, db.execQuery, "status = 'processing'")
}

func TestCancelJobGuards(t *testing.T) {
	db := &mockDBTX{}
	s := NewPostgresJobStore(db)

	require.NoError(t, s.CancelJob(context.Background(), uuid.New()))

	assert.Contains(t, db.execQuery, "status IN ('pending', 'processing', 'retrying')")
}

func TestDeleteTerminalJobsOlderThan(t *testing.T) {
	db := &mockDBTX{execRes: mockResult{rowsAffected: 7}}
	s := NewPostgresJobStore(db)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	deleted, err := s.DeleteTerminalJobsOlderThan(context.Background(), cutoff)
	require.NoError(t, err)

	assert.Equal(t, int64(7), deleted)
	assert.Contains(t, db.execQuery, "status IN ('completed', 'failed', 'cancelled')")
	assert.Equal(t, []any{cutoff}, db.execArgs)
}

func TestMapError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, MapError(nil))
	})

	t.Run("no_rows", func(t *testing.T) {
		assert.ErrorIs(t, MapError(sql.ErrNoRows), store.ErrNotFound)
	})

	t.Run("check_violation", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "jobs_retry_count_check"}
		err := MapError(fmt.Errorf("exec: %w", pgErr))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.True(t, IsCheckConstraintViolation(pgErr))
	})

	t.Run("unmapped_error_passes_through", func(t *testing.T) {
		plain := errors.New("connection reset")
		assert.Equal(t, plain, MapError(plain))
	})
}
