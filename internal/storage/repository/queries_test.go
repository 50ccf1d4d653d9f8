package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

func TestStorage_CreateQueryWithAbuseCheck(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	rule := AbuseRule{Threshold: 5, Window: time.Hour}

	tests := []struct {
		name           string
		alreadyFlagged bool
		recent         int
		wantOverLimit  bool
		wantNewFlag    bool
	}{
		{name: "fifth query in window is not flagged", recent: 4},
		{name: "sixth query in window flags the user", recent: 5, wantOverLimit: true, wantNewFlag: true},
		{name: "already flagged user is not flagged twice", alreadyFlagged: true, recent: 7, wantOverLimit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newStorageWithMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery(q("SELECT flagged FROM users WHERE id = $1 FOR UPDATE")).
				WithArgs("u-1").
				WillReturnRows(sqlmock.NewRows([]string{"flagged"}).AddRow(tt.alreadyFlagged))
			mock.ExpectQuery(q("SELECT COUNT(*) FROM queries WHERE user_id = $1 AND created_at >= $2")).
				WithArgs("u-1", now.Add(-time.Hour)).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.recent))
			if tt.wantNewFlag {
				mock.ExpectExec(q("UPDATE users SET flagged = TRUE WHERE id = $1")).
					WithArgs("u-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(q("INSERT INTO user_audit")).
					WithArgs("u-1", nil, models.AuditAutoFlag).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
			mock.ExpectQuery(q("INSERT INTO queries (user_id, question, status, created_at)")).
				WithArgs("u-1", "Where can I drop a TV?", models.QueryPending, now).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("q-1"))
			mock.ExpectCommit()

			res, err := s.CreateQueryWithAbuseCheck(context.Background(), "u-1", "Where can I drop a TV?", rule, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOverLimit, res.OverLimit)
			assert.Equal(t, tt.wantNewFlag, res.NewlyFlagged)
			assert.Equal(t, "q-1", res.Query.ID)
			assert.Equal(t, models.QueryPending, res.Query.Status)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_CreateQueryWithAbuseCheck_InsertFailsRollsBack(t *testing.T) {
	now := time.Now()
	s, mock := newStorageWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"flagged"}).AddRow(false))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM queries")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(q("INSERT INTO queries")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := s.CreateQueryWithAbuseCheck(context.Background(), "u-1", "q", AbuseRule{Threshold: 5, Window: time.Hour}, now)
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_AnswerQuery(t *testing.T) {
	t.Run("pending query answered", func(t *testing.T) {
		s, mock := newStorageWithMock(t)
		mock.ExpectExec(q("SET status = 'Answered', answer = $1 WHERE id = $2 AND status = 'Pending'")).
			WithArgs("Bring it to bin 4", "q-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.AnswerQuery(context.Background(), "q-1", "Bring it to bin 4"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("answered or missing query", func(t *testing.T) {
		s, mock := newStorageWithMock(t)
		mock.ExpectExec(q("UPDATE queries")).
			WithArgs("again", "q-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.ErrorIs(t, s.AnswerQuery(context.Background(), "q-1", "again"), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStorage_ListQueries(t *testing.T) {
	s, mock := newStorageWithMock(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("WHERE ($1 = '' OR q.status = $1)")).
		WithArgs(models.QueryAnswered).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "question", "answer", "status", "created_at", "username", "email"}).
			AddRow("q-1", "u-1", "Q?", "A.", models.QueryAnswered, created, "ann", "ann@example.com"))

	got, err := s.ListQueries(context.Background(), models.QueryAnswered)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Answer)
	assert.Equal(t, "A.", *got[0].Answer)
	assert.Equal(t, "ann", got[0].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_DashboardCounts(t *testing.T) {
	s, mock := newStorageWithMock(t)
	mock.ExpectQuery(q("(SELECT COUNT(*) FROM queries)")).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e"}).AddRow(10, 4, 6, 2, 30))

	d, err := s.DashboardCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Dashboard{TotalQueries: 10, AnsweredQueries: 4, PendingQueries: 6, FlaggedUsers: 2, TotalUsers: 30}, d)
	require.NoError(t, mock.ExpectationsWereMet())
}
