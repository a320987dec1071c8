package klypt

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a7m-1st/klypt-sub002/utils"
)

func testOpen(t *testing.T) *Klypt {
	t.Helper()
	k, err := Open(t.TempDir(), Options{
		Logger: utils.NewDefaultLogger(slog.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func seedStudent(t *testing.T, k *Klypt, id, first, last string) Student {
	t.Helper()
	s := Student{ID: id, FirstName: first, LastName: last, CreatedAt: nowMillis()}
	require.True(t, k.Students().Save(context.Background(), s))
	return s
}

func seedEducator(t *testing.T, k *Klypt, id, name string) Educator {
	t.Helper()
	e := Educator{ID: id, FullName: name, InstituteName: "Test Institute"}
	require.True(t, k.Educators().Save(context.Background(), e))
	return e
}

func seedKlyp(t *testing.T, k *Klypt, classCode, title string, questions ...Question) Klyp {
	t.Helper()
	klyp := Klyp{
		ID:        NewKlypID(),
		ClassCode: classCode,
		Title:     title,
		MainBody:  "body of " + title,
		Questions: questions,
		CreatedAt: nowMillis(),
	}
	require.NoError(t, klyp.Validate())
	require.True(t, k.Klyps().Save(context.Background(), klyp))
	return klyp
}

func question(text, correct string) Question {
	return Question{
		QuestionText:  text,
		Options:       []string{"opt a", "opt b", "opt c", "opt d"},
		CorrectAnswer: correct,
	}
}

func TestOpenReopen(t *testing.T) {
	dir := t.TempDir()
	log := utils.NewDefaultLogger(slog.LevelError)

	k, err := Open(dir, Options{Logger: log})
	require.NoError(t, err)
	seedStudent(t, k, "S1", "Ada", "Lovelace")
	require.NoError(t, k.Close())

	// the index set is requested again on every open; must be a no-op
	k, err = Open(dir, Options{Logger: log})
	require.NoError(t, err)
	defer k.Close()
	s, err := k.Students().Get(context.Background(), "S1")
	require.NoError(t, err)
	require.Equal(t, "Ada", s.FirstName)
}

func TestDeleteClassCascade(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedEducator(t, k, "E1", "Prof X")

	_, err := k.Reconciler().Reconcile(ctx, ReconcileRequest{
		ClassCode: "SCI101", ClassName: "Science", ActorID: "E1",
		Role: RoleEducator, CreatorFlow: true,
	})
	require.NoError(t, err)
	klyp := seedKlyp(t, k, "SCI101", "Atoms", question("q1", "A"))
	attempt, err := k.Quizzes().Start(ctx, "S1", klyp.ID)
	require.NoError(t, err)

	ok, err := k.DeleteClass(ctx, "SCI101", true)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = k.Reconciler().ClassByCode(ctx, "SCI101")
	require.Error(t, err)
	remaining, err := k.Klyps().QueryBy(ctx, []string{"classCode"}, []string{"SCI101"})
	require.NoError(t, err)
	require.Empty(t, remaining)
	_, err = k.Attempts().Get(ctx, attempt.ID)
	require.Error(t, err)
}

func TestDeleteClassOrphans(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()

	_, err := k.Reconciler().Reconcile(ctx, ReconcileRequest{
		ClassCode: "HIS200", ClassName: "History", ActorID: "E1",
		Role: RoleEducator, CreatorFlow: true,
	})
	require.NoError(t, err)
	seedKlyp(t, k, "HIS200", "Rome", question("q", "B"))

	ok, err := k.DeleteClass(ctx, "HIS200", false)
	require.NoError(t, err)
	require.True(t, ok)

	// without cascade the klyps survive as orphans, by design
	orphans, err := k.Klyps().QueryBy(ctx, []string{"classCode"}, []string{"HIS200"})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
}
