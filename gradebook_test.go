package klypt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportGradebook(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	seedEducator(t, k, "E1", "Prof X")
	seedStudent(t, k, "S1", "Ada", "Lovelace")
	seedStudent(t, k, "S2", "Grace", "Hopper")

	_, err := k.Reconciler().Reconcile(ctx, ReconcileRequest{
		ClassCode: "MATH201", ClassName: "Calculus II", ActorID: "E1",
		Role: RoleEducator, CreatorFlow: true,
	})
	require.NoError(t, err)
	for _, s := range []string{"S1", "S2"} {
		_, err := k.Reconciler().Reconcile(ctx, ReconcileRequest{
			ClassCode: "MATH201", ActorID: s, Role: RoleStudent,
		})
		require.NoError(t, err)
	}
	klyp := seedKlyp(t, k, "MATH201", "Integrals", question("q1", "A"), question("q2", "B"))

	attempt, err := k.Quizzes().Start(ctx, "S1", klyp.ID)
	require.NoError(t, err)
	_, err = k.Quizzes().Answer(ctx, attempt.ID, 0, "A")
	require.NoError(t, err)
	_, err = k.Quizzes().Answer(ctx, attempt.ID, 1, "C")
	require.NoError(t, err)
	_, err = k.Quizzes().Submit(ctx, attempt.ID)
	require.NoError(t, err)

	f, err := k.ExportGradebook(ctx, "MATH201")
	require.NoError(t, err)

	header, err := f.GetCellValue(GradebookSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)
	col, err := f.GetCellValue(GradebookSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Integrals", col)

	s1, err := f.GetCellValue(GradebookSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", s1)
	score, err := f.GetCellValue(GradebookSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "50", score)

	// S2 never submitted: cell stays empty
	s2score, err := f.GetCellValue(GradebookSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "", s2score)
}

func TestExportGradebookUnknownClass(t *testing.T) {
	k := testOpen(t)
	_, err := k.ExportGradebook(context.Background(), "NOPE")
	assert.Error(t, err)
}
