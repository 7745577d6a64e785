package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/storage"
)

var page1 = models.RootRef{Kind: models.RootPage, ID: 1}

func ptr[T any](v T) *T { return &v }

// tickingClock выдаёт строго возрастающее время с шагом в секунду.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func mustInsert(t *testing.T, s *Storage, c models.Comment) *models.Comment {
	t.Helper()

	var out *models.Comment
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		out, err = tx.InsertComment(context.Background(), c)
		return err
	})
	require.NoError(t, err)

	return out
}

func child(parent *models.Comment, owner int64, text string) models.Comment {
	anc := append(append([]int64(nil), parent.Ancestors...), parent.ID)
	return models.Comment{
		OwnerID:   owner,
		Root:      parent.Root,
		ParentID:  ptr(parent.ID),
		Level:     parent.Level + 1,
		Ancestors: anc,
		Text:      text,
	}
}

func TestStorage_InsertAndRead(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))

	a := mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "a"})
	b := mustInsert(t, s, child(a, 2, "b"))
	c := mustInsert(t, s, child(b, 3, "c"))

	require.Equal(t, []int64{a.ID, b.ID}, c.Ancestors)
	require.Equal(t, 2, c.Level)

	got, err := s.CommentByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, *c, *got)

	// копия не разделяет память с ареной
	got.Ancestors[0] = 999
	again, err := s.CommentByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, again.Ancestors[0])

	leaf, err := s.IsLeaf(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, leaf)

	leaf, err = s.IsLeaf(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, leaf)

	_, err = s.IsLeaf(ctx, 100)
	require.ErrorIs(t, err, storage.ErrNotFound)

	desc, err := s.Query(ctx, models.Filter{AncestorID: ptr(a.ID)})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	require.Equal(t, b.ID, desc[0].ID)
	require.Equal(t, c.ID, desc[1].ID)
}

func TestStorage_QueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))

	r1 := mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "r1"})
	r2 := mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "r2"})
	k1 := mustInsert(t, s, child(r1, 1, "k1"))
	mustInsert(t, s, models.Comment{OwnerID: 1, Root: models.RootRef{Kind: models.RootArticle, ID: 1}, Text: "other"})

	got, err := s.Query(ctx, models.Filter{Root: &page1})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int64{r2.ID, r1.ID, k1.ID}, []int64{got[0].ID, got[1].ID, got[2].ID})

	got, err = s.Query(ctx, models.Filter{Root: &page1, CreatedFrom: &r2.CreatedAt, CreatedTo: &k1.CreatedAt})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestStorage_RootLevelPage(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))

	for i := 0; i < 15; i++ {
		mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "x"})
	}

	p, err := s.RootLevelPage(ctx, page1, 1, 10)
	require.NoError(t, err)
	require.Len(t, p.Items, 10)
	require.Equal(t, 15, p.Total)
	require.Equal(t, 2, *p.Next)
	require.Nil(t, p.Previous)
	require.Equal(t, int64(15), p.Items[0].ID)

	p, err = s.RootLevelPage(ctx, page1, 2, 10)
	require.NoError(t, err)
	require.Len(t, p.Items, 5)
	require.Nil(t, p.Next)
	require.Equal(t, 1, *p.Previous)

	p, err = s.RootLevelPage(ctx, page1, 3, 10)
	require.NoError(t, err)
	require.Empty(t, p.Items)
}

func TestStorage_TxRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "a"})
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertComment(ctx, child(a, 1, "b"))
		require.NoError(t, err)
		_, err = tx.UpdateText(ctx, a.ID, "changed")
		require.NoError(t, err)
		_, err = tx.AppendHistory(ctx, models.HistoryRecord{CommentID: a.ID, Kind: models.ChangeModified})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.CommentByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "a", got.Text)

	leaf, err := s.IsLeaf(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, leaf)

	hist, err := s.ListHistory(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	require.Empty(t, hist)

	// id переиспользуется после отката
	b := mustInsert(t, s, child(a, 1, "b"))
	require.Equal(t, a.ID+1, b.ID)
}

func TestStorage_DeleteGuards(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := mustInsert(t, s, models.Comment{OwnerID: 1, Root: page1, Text: "a"})
	b := mustInsert(t, s, child(a, 1, "b"))

	err := s.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteComment(ctx, a.ID) })
	require.ErrorIs(t, err, storage.ErrHasChildren)

	err = s.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteComment(ctx, b.ID) })
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteComment(ctx, b.ID) })
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertComment(ctx, child(b, 1, "orphan"))
		return err
	})
	require.ErrorIs(t, err, storage.ErrParentNotFound)

	leaf, err := s.IsLeaf(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, leaf)
}

func TestStorage_ListHistoryFilters(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))

	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		for _, r := range []models.HistoryRecord{
			{CommentID: 1, Kind: models.ChangeCreated, ChangedBy: 1},
			{CommentID: 1, Kind: models.ChangeModified, ChangedBy: 1},
			{CommentID: 2, Kind: models.ChangeCreated, ChangedBy: 2},
		} {
			if _, err := tx.AppendHistory(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := s.ListHistory(ctx, models.HistoryFilter{CommentID: ptr(int64(1))})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, models.ChangeModified, got[0].Kind)

	got, err = s.ListHistory(ctx, models.HistoryFilter{Kind: ptr(models.ChangeCreated)})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.ListHistory(ctx, models.HistoryFilter{ChangedBy: ptr(int64(2))})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestJobs_Lifecycle(t *testing.T) {
	ctx := context.Background()
	j := NewJobs(time.Hour)

	_, err := j.JobByID(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrJobNotFound)

	require.NoError(t, j.CreateJob(ctx, models.ExportJob{ID: "1", Status: models.JobPending, Encoding: "json"}))

	job, err := j.JobByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, models.JobPending, job.Status)

	require.NoError(t, j.FinishJob(ctx, models.ExportJob{ID: "1", Status: models.JobFailure, Error: "x"}))
	err = j.FinishJob(ctx, models.ExportJob{ID: "1", Status: models.JobSuccess})
	require.ErrorIs(t, err, storage.ErrJobFinished)

	job, err = j.JobByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, models.JobFailure, job.Status)
	require.Equal(t, "json", job.Encoding)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = j.JobByID(ctx, "1")
	require.ErrorIs(t, err, storage.ErrJobNotFound)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()
	d.AddUser(1)
	d.AddEntity(models.RootPage, 10, 1)

	ok, err := d.UserExists(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.UserExists(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)

	reg := d.Registry()
	e, err := reg.Resolve(ctx, models.RootRef{Kind: models.RootPage, ID: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), e.OwnerID)

	_, err = reg.Resolve(ctx, models.RootRef{Kind: models.RootArticle, ID: 10})
	require.ErrorIs(t, err, storage.ErrRootNotFound)
}
