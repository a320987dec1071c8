package klypt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
)

func TestRepoGetNotFound(t *testing.T) {
	k := testOpen(t)
	_, err := k.Students().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, klypt_errors.ErrNotFound)
}

func TestRepoSaveUpsert(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedStudent(t, k, "S1", "Ada", "Lovelace")

	s, err := k.Students().Get(ctx, "S1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.UpdatedAt, "save must stamp updatedAt")

	s.LastName = "Byron"
	require.True(t, k.Students().Save(ctx, s))
	back, err := k.Students().Get(ctx, "S1")
	require.NoError(t, err)
	// wholesale overwrite, no field-level merge
	assert.Equal(t, "Byron", back.LastName)

	n, err := k.Students().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepoDeleteIdempotent(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedStudent(t, k, "S1", "Ada", "Lovelace")

	assert.True(t, k.Students().Delete(ctx, "S1"))
	assert.False(t, k.Students().Delete(ctx, "S1"))
	assert.False(t, k.Students().Delete(ctx, "never-existed"))
}

func TestRepoQueryByUsesIndex(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedStudent(t, k, "S1", "Ada", "Lovelace")
	seedStudent(t, k, "S2", "Ada", "Byron")
	seedStudent(t, k, "S3", "Grace", "Hopper")

	matches, err := k.Students().QueryBy(ctx, []string{"firstName", "lastName"}, []string{"Ada", "Byron"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "S2", matches[0].ID)

	_, err = k.Students().QueryBy(ctx, []string{"recoveryCode"}, []string{"zzz"})
	assert.ErrorIs(t, err, klypt_errors.ErrNoIndex)
}

func TestRepoQueryOne(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedEducator(t, k, "E1", "Prof X")

	e, err := k.Educators().QueryOne(ctx, []string{"instituteName"}, []string{"Test Institute"})
	require.NoError(t, err)
	assert.Equal(t, "E1", e.ID)

	_, err = k.Educators().QueryOne(ctx, []string{"instituteName"}, []string{"Nowhere"})
	assert.ErrorIs(t, err, klypt_errors.ErrNotFound)
}

func TestRepoAllSkipsIDlessBodies(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedStudent(t, k, "S1", "Ada", "Lovelace")
	// a body without _id cannot even be written through the store
	err := k.Store().putDoc(KindStudent, Document{"firstName": "ghost"})
	assert.ErrorIs(t, err, klypt_errors.ErrNoDocID)

	all, err := k.Students().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepoCancelledContext(t *testing.T) {
	k := testOpen(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, k.Students().Save(ctx, Student{ID: "S1"}))
	_, err := k.Students().Get(ctx, "S1")
	assert.Error(t, err)
}
