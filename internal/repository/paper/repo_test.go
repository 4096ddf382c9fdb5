package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/papernest/internal/domain"
)

var columns = []string{
	"id", "owner_id", "title", "authors", "status", "priority",
	"categories", "paper_text", "summary", "created_at", "updated_at",
}

func newRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreate(t *testing.T) {
	r, mock := newRepo(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO papers").
		WithArgs(int64(1), "Attention Is All You Need", "Vaswani et al.", "to_read", "high", "nlp", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	p := &domain.Paper{
		OwnerID:    1,
		Title:      "Attention Is All You Need",
		Authors:    "Vaswani et al.",
		Status:     domain.StatusToRead,
		Priority:   domain.PriorityHigh,
		Categories: "nlp",
	}
	require.NoError(t, r.Create(context.Background(), p))
	assert.Equal(t, int64(5), p.ID)
	assert.Equal(t, created, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	r, mock := newRepo(t)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM papers WHERE owner_id = \\$1 ORDER BY id LIMIT \\$2 OFFSET \\$3").
		WithArgs(int64(1), 10, 20).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), int64(1), "A", "", "done", "low", "", "", "", created, nil).
			AddRow(int64(2), int64(1), "B", "", "reading", "medium", "", "text", "sum", created, updated))

	papers, err := r.List(context.Background(), 1, 20, 10)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, domain.StatusDone, papers[0].Status)
	assert.Nil(t, papers[0].UpdatedAt)
	require.NotNil(t, papers[1].UpdatedAt)
	assert.Equal(t, updated, *papers[1].UpdatedAt)
	assert.Equal(t, "text", papers[1].PaperText)
}

func TestList_QueryError(t *testing.T) {
	r, mock := newRepo(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("conn closed"))

	_, err := r.List(context.Background(), 1, 0, 100)
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	r, mock := newRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM papers WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs(int64(9), int64(1)).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := r.Get(context.Background(), 1, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	r, mock := newRepo(t)
	updated := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE papers").
		WithArgs("T", "", "reading", "medium", "", "body", "", int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	p := &domain.Paper{ID: 3, OwnerID: 1, Title: "T", Status: domain.StatusReading, Priority: domain.PriorityMedium, PaperText: "body"}
	require.NoError(t, r.Update(context.Background(), p))
	require.NotNil(t, p.UpdatedAt)
	assert.Equal(t, updated, *p.UpdatedAt)
}

func TestUpdate_NotFound(t *testing.T) {
	r, mock := newRepo(t)
	mock.ExpectQuery("UPDATE papers").WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := r.Update(context.Background(), &domain.Paper{ID: 3, OwnerID: 2, Title: "T"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	r, mock := newRepo(t)

	mock.ExpectExec("DELETE FROM papers").
		WithArgs(int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Delete(context.Background(), 1, 3))

	mock.ExpectExec("DELETE FROM papers").
		WithArgs(int64(4), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.Delete(context.Background(), 1, 4), domain.ErrNotFound)
}
