package klypt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
)

func exportedClass(t *testing.T, k *Klypt, code, title string, klypCount int) []byte {
	t.Helper()
	ctx := context.Background()
	_, err := k.Reconciler().Reconcile(ctx, ReconcileRequest{
		ClassCode: code, ClassName: title, ActorID: "E1",
		Role: RoleEducator, CreatorFlow: true,
	})
	require.NoError(t, err)
	for i := 0; i < klypCount; i++ {
		seedKlyp(t, k, code, "Unit "+string(rune('A'+i)), question("q", "A"), question("q2", "C"))
	}
	body, err := k.Exchange().Export(ctx, code)
	require.NoError(t, err)
	return body
}

func TestExportShape(t *testing.T) {
	k := testOpen(t)
	body := exportedClass(t, k, "MATH201", "Calculus II", 2)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "1.0", raw["exportVersion"])
	assert.NotEmpty(t, raw["exportTimestamp"])
	assert.Equal(t, float64(2), raw["klypCount"])

	details := Document(raw["classDetails"].(map[string]any))
	assert.Equal(t, "MATH201", details.String("classCode"))
	assert.Equal(t, "class", details.String("type"))
	assert.Equal(t, "Calculus II", details.String("classTitle"))
}

func TestExportUnknownCode(t *testing.T) {
	k := testOpen(t)
	_, err := k.Exchange().Export(context.Background(), "NOPE42")
	assert.ErrorIs(t, err, klypt_errors.ErrNotFound)
}

func TestRoundTripIntoEmptyStore(t *testing.T) {
	src := testOpen(t)
	body := exportedClass(t, src, "GEO404", "Geometry", 3)

	dst := testOpen(t)
	ctx := context.Background()
	plan, err := dst.Exchange().StageImport(ctx, body)
	require.NoError(t, err)
	assert.False(t, plan.Duplicate())

	res, err := plan.Apply(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "GEO404", res.ClassCode)
	assert.Equal(t, 3, res.KlypCount)

	class, err := dst.Reconciler().ClassByCode(ctx, "GEO404")
	require.NoError(t, err)
	assert.Equal(t, "Geometry", class.ClassTitle)
	klyps, err := dst.Klyps().QueryBy(ctx, []string{"classCode"}, []string{"GEO404"})
	require.NoError(t, err)
	require.Len(t, klyps, 3)
	for _, klyp := range klyps {
		require.Len(t, klyp.Questions, 2)
		assert.Equal(t, "A", klyp.Questions[0].CorrectAnswer)
		assert.Len(t, klyp.Questions[0].Options, 4)
	}
}

func TestImportDuplicateCancelLeavesStoreUntouched(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	body := exportedClass(t, k, "DUP100", "Original", 2)

	classCountBefore, err := k.Classes().Count(ctx)
	require.NoError(t, err)
	klypCountBefore, err := k.Klyps().Count(ctx)
	require.NoError(t, err)

	plan, err := k.Exchange().StageImport(ctx, body)
	require.NoError(t, err)
	require.True(t, plan.Duplicate())
	code, title := plan.Existing()
	assert.Equal(t, "DUP100", code)
	assert.Equal(t, "Original", title)

	// declining the overwrite writes nothing
	_, err = plan.Apply(ctx, false)
	assert.ErrorIs(t, err, klypt_errors.ErrDuplicateClass)

	classCountAfter, err := k.Classes().Count(ctx)
	require.NoError(t, err)
	klypCountAfter, err := k.Klyps().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, classCountBefore, classCountAfter)
	assert.Equal(t, klypCountBefore, klypCountAfter)
}

func TestImportOverwriteReplacesKlyps(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()
	body := exportedClass(t, k, "EVO200", "Evolving", 2)

	// the class evolves after the export: one more klyp locally
	seedKlyp(t, k, "EVO200", "Extra", question("q", "B"))

	plan, err := k.Exchange().StageImport(ctx, body)
	require.NoError(t, err)
	require.True(t, plan.Duplicate())

	res, err := plan.Apply(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Overwrote)

	// final count equals the imported set, not old + new
	klyps, err := k.Klyps().QueryBy(ctx, []string{"classCode"}, []string{"EVO200"})
	require.NoError(t, err)
	assert.Len(t, klyps, 2)

	// one class only, and it kept its original document id
	classes, err := k.Classes().QueryBy(ctx, []string{"classCode"}, []string{"EVO200"})
	require.NoError(t, err)
	require.Len(t, classes, 1)
}

func TestImportLegacyBareFormat(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()

	legacy := []byte(`{"classCode":"OLD777","classTitle":"Legacy Class"}`)
	plan, err := k.Exchange().StageImport(ctx, legacy)
	require.NoError(t, err)
	assert.False(t, plan.Duplicate())
	res, err := plan.Apply(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.KlypCount)

	class, err := k.Reconciler().ClassByCode(ctx, "OLD777")
	require.NoError(t, err)
	assert.Equal(t, "Legacy Class", class.ClassTitle)
	assert.Equal(t, EducatorImported, class.EducatorID)
	assert.NotEmpty(t, class.ID)
	assert.Empty(t, class.StudentIDs)
}

func TestImportValidation(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()

	_, err := k.Exchange().StageImport(ctx, []byte(`{"classTitle":"no code"}`))
	assert.ErrorIs(t, err, klypt_errors.ErrValidation)
	_, err = k.Exchange().StageImport(ctx, []byte(`{"classCode":"C1"}`))
	assert.ErrorIs(t, err, klypt_errors.ErrValidation)
	_, err = k.Exchange().StageImport(ctx, []byte(`not json`))
	assert.ErrorIs(t, err, klypt_errors.ErrValidation)
}

func TestImportMintsMissingKlypIDs(t *testing.T) {
	k := testOpen(t)
	ctx := context.Background()

	payload := []byte(`{
		"exportVersion":"1.0",
		"classDetails":{"classCode":"MINT01","classTitle":"Minted"},
		"klyps":[{"title":"no id here","questions":[]}],
		"klypCount":1
	}`)
	plan, err := k.Exchange().StageImport(ctx, payload)
	require.NoError(t, err)
	res, err := plan.Apply(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.KlypCount)

	klyps, err := k.Klyps().QueryBy(ctx, []string{"classCode"}, []string{"MINT01"})
	require.NoError(t, err)
	require.Len(t, klyps, 1)
	assert.Contains(t, klyps[0].ID, "klyp_")
	assert.NotEmpty(t, klyps[0].CreatedAt)
}
