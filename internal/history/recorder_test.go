package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
	"github.com/pribylovaa/comment-tree/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

func insert(t *testing.T, st *memory.Storage, text string) models.Comment {
	t.Helper()

	var out models.Comment
	err := st.WithinTx(context.Background(), func(tx storage.Tx) error {
		c, err := tx.InsertComment(context.Background(), models.Comment{
			OwnerID: 1,
			Root:    models.RootRef{Kind: models.RootPage, ID: 1},
			Text:    text,
		})
		if err != nil {
			return err
		}
		out = *c
		return nil
	})
	require.NoError(t, err)

	return out
}

func TestRecorder_Lifecycle(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	r := NewRecorder()

	c := insert(t, st, "v1")

	err := st.WithinTx(ctx, func(tx storage.Tx) error {
		rec, err := r.Created(ctx, tx, c, 1)
		require.NoError(t, err)
		require.Equal(t, c.CreatedAt, rec.ChangedAt)

		after := c
		after.Text = "v2"
		rec, err = r.Modified(ctx, tx, c, after, 1)
		require.NoError(t, err)
		require.NotNil(t, rec)

		rec, err = r.Modified(ctx, tx, after, after, 1)
		require.NoError(t, err)
		require.Nil(t, rec)

		_, err = r.Deleted(ctx, tx, after, 1)
		return err
	})
	require.NoError(t, err)

	recs, err := st.ListHistory(ctx, models.HistoryFilter{CommentID: ptr(c.ID)})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, models.ChangeDeleted, recs[0].Kind)
	require.Equal(t, "v2", recs[0].Text)
	require.Equal(t, models.ChangeModified, recs[1].Kind)
	require.Equal(t, models.ChangeCreated, recs[2].Kind)
	require.Equal(t, "v1", recs[2].Text)
}

func TestRecorder_RolledBackWithTx(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	r := NewRecorder()
	c := insert(t, st, "v1")

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := r.Deleted(ctx, tx, c, 1)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	recs, err := st.ListHistory(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestValidateFilter(t *testing.T) {
	now := time.Now()
	bad := models.ChangeKind("Renamed")

	cases := []struct {
		name string
		f    models.HistoryFilter
		ok   bool
	}{
		{"empty", models.HistoryFilter{}, true},
		{"full", models.HistoryFilter{CommentID: ptr(int64(1)), ChangedBy: ptr(int64(2)), From: &now, To: ptr(now.Add(time.Hour)), Kind: ptr(models.ChangeCreated)}, true},
		{"bad id", models.HistoryFilter{CommentID: ptr(int64(0))}, false},
		{"bad user", models.HistoryFilter{ChangedBy: ptr(int64(-1))}, false},
		{"bad kind", models.HistoryFilter{Kind: &bad}, false},
		{"inverted range", models.HistoryFilter{From: ptr(now.Add(time.Hour)), To: &now}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFilter(tc.f)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}
