package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-forestry/dta-cli/internal/model"
	"github.com/treeline-forestry/dta-cli/internal/store"
)

// fakeStore is an in-memory store.Store with injectable failures.
type fakeStore struct {
	general map[string]model.GeneralInfo
	trees   []model.TreeRecord
	nextID  int

	failSave   error
	failCreate error
	failUpdate error
	failDelete error
}

func newFakeStore() *fakeStore {
	return &fakeStore{general: map[string]model.GeneralInfo{}}
}

func (f *fakeStore) SaveGeneral(_ context.Context, dateKey string, general model.GeneralInfo) error {
	if f.failSave != nil {
		return f.failSave
	}
	copied := make(model.GeneralInfo, len(general))
	for k, v := range general {
		copied[k] = v
	}
	f.general[dateKey] = copied
	return nil
}

func (f *fakeStore) LoadGeneral(_ context.Context, dateKey string) (model.GeneralInfo, error) {
	g, ok := f.general[dateKey]
	if !ok {
		return nil, nil
	}
	return g, nil
}

func (f *fakeStore) ListTrees(context.Context) ([]model.TreeRecord, error) {
	out := make([]model.TreeRecord, len(f.trees))
	copy(out, f.trees)
	return out, nil
}

func (f *fakeStore) CreateTree(_ context.Context, rec model.TreeRecord) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.nextID++
	rec.ID = fmt.Sprintf("tree-%d", f.nextID)
	f.trees = append([]model.TreeRecord{rec}, f.trees...)
	return rec.ID, nil
}

func (f *fakeStore) UpdateTree(_ context.Context, rec model.TreeRecord) (string, error) {
	if f.failUpdate != nil {
		return "", f.failUpdate
	}
	for i := range f.trees {
		if f.trees[i].ID == rec.ID {
			f.trees[i] = rec
			return rec.ID, nil
		}
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) DeleteTree(_ context.Context, rec model.TreeRecord) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	for i := range f.trees {
		if f.trees[i].ID == rec.ID {
			f.trees = append(f.trees[:i], f.trees[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

func newHydratedSession(t *testing.T, st store.Store) *Session {
	t.Helper()
	sess := New(st)
	require.NoError(t, sess.Hydrate(context.Background()))
	return sess
}

// fillTreeDraft sets every required tree attribute on the draft.
func fillTreeDraft(sess *Session) {
	sess.SetTreeField("species", "Douglas Fir")
	sess.SetTreeField("treeClass", "3")
	sess.SetTreeField("wildlifeValue", "Low")
	sess.SetTreeField("treeHeight", "42")
	sess.SetTreeField("diameter", "85")
}

// --- hydration ---

func TestSession_Hydrate_LatchesOnce(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	assert.True(t, sess.Hydrated())

	// A second hydrate is a no-op even if the store has changed since.
	_, err := st.CreateTree(context.Background(), model.TreeRecord{DateKey: "2024-03-05", TreeNumber: 1})
	require.NoError(t, err)
	require.NoError(t, sess.Hydrate(context.Background()))
	assert.Empty(t, sess.Trees())
}

func TestSession_GeneralNotPersistedBeforeHydrate(t *testing.T) {
	st := newFakeStore()
	sess := New(st)

	require.NoError(t, sess.SetGeneralField(context.Background(), "assessorName", "J. Moss"))
	assert.Empty(t, st.general, "pre-hydration writes must stay in memory")

	require.NoError(t, sess.Hydrate(context.Background()))
	require.NoError(t, sess.SetGeneralField(context.Background(), "district", "Chilliwack"))
	saved := st.general[sess.ActiveDateKey()]
	assert.Equal(t, "J. Moss", saved.Get("assessorName"))
	assert.Equal(t, "Chilliwack", saved.Get("district"))
}

func TestSession_Hydrate_RestoresSavedDay(t *testing.T) {
	st := newFakeStore()
	today := model.DayKey(time.Now())
	st.general[today] = model.GeneralInfo{
		"assessorName": "J. Moss",
		"date":         model.FormatDateLabel(time.Now()),
	}

	sess := newHydratedSession(t, st)
	assert.Equal(t, "J. Moss", sess.General().Get("assessorName"))
	// Required fields are complete, so the session rests at summary.
	assert.Equal(t, StepSummary, sess.Step())
}

func TestSession_Hydrate_IncompleteGeneralStaysOnGeneral(t *testing.T) {
	st := newFakeStore()
	today := model.DayKey(time.Now())
	st.general[today] = model.GeneralInfo{"assessorName": "J. Moss"} // no date

	sess := newHydratedSession(t, st)
	assert.Equal(t, StepGeneral, sess.Step())
}

// --- general step ---

func TestSession_ContinueGeneral_RequiresFields(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())

	err := sess.ContinueGeneral()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "assessorName")

	require.NoError(t, sess.SetGeneralField(context.Background(), "assessorName", "J. Moss"))
	require.NoError(t, sess.SetDate(context.Background(), time.Now()))
	require.NoError(t, sess.ContinueGeneral())
	assert.Equal(t, StepSummary, sess.Step())
}

func TestSession_ContinueGeneral_WhitespaceOnlyIsEmpty(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	require.NoError(t, sess.SetGeneralField(context.Background(), "assessorName", "   "))
	require.NoError(t, sess.SetDate(context.Background(), time.Now()))

	assert.False(t, sess.CanContinueGeneral())
	assert.True(t, IsValidation(sess.ContinueGeneral()))
}

// --- tree flow ---

func TestSession_ContinueTree_RequiresAllFive(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.StartTreeAssessment()

	err := sess.ContinueTree()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 5)

	fillTreeDraft(sess)
	require.NoError(t, sess.ContinueTree())
	assert.Equal(t, StepLOD, sess.Step())
}

func TestSession_SetLOD_ClearsIndicators(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SetLOD(2)
	sess.ToggleIndicator("Hazardous Top")
	assert.True(t, sess.LODChecks()["Hazardous Top"])

	sess.SetLOD(3)
	assert.Empty(t, sess.LODChecks(), "changing levels must clear the selection")
}

func TestSession_SetLOD_InvalidResetsToZero(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SetLOD(7)
	assert.Equal(t, model.LOD(0), sess.LOD())
	assert.True(t, IsValidation(sess.ContinueLOD()))
}

func TestSession_ToggleIndicator_MultiSelect(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SetLOD(2)
	sess.ToggleIndicator("Hazardous Top")
	sess.ToggleIndicator("Dead Limbs")
	sess.ToggleIndicator("Hazardous Top") // toggle off

	checks := sess.LODChecks()
	assert.False(t, checks["Hazardous Top"])
	assert.True(t, checks["Dead Limbs"])
}

func TestSession_ToggleIndicator_LOD4SingleChoice(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SetLOD(4)
	sess.ToggleIndicator("Class 1 Tree")
	sess.ToggleIndicator(model.NoneOfTheAbove)

	checks := sess.LODChecks()
	assert.False(t, checks["Class 1 Tree"])
	assert.True(t, checks[model.NoneOfTheAbove])
	assert.Equal(t, model.NoneOfTheAbove, sess.LOD4Selection())
}

// --- recommendation ---

func TestSession_RecommendedDecision(t *testing.T) {
	tests := []struct {
		name     string
		lod      model.LOD
		checks   []string
		wildlife string
		want     string
	}{
		{"no indicators is safe", 2, nil, "Low", model.DecisionSafe},
		{"indicator and low wildlife falls", 2, []string{"Dead Limbs"}, "Low", model.DecisionFallTree},
		{"indicator and high wildlife keeps NWZ", 3, []string{"Tree Lean"}, "High", model.DecisionNWZ},
		{"lod4 class selection is safe", 4, []string{"Class 1 Tree"}, "Low", model.DecisionSafe},
		{"lod4 none of the above is dangerous", 4, []string{model.NoneOfTheAbove}, "Low", model.DecisionFallTree},
		{"lod4 none of the above high wildlife", 4, []string{model.NoneOfTheAbove}, "High", model.DecisionNWZ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newHydratedSession(t, newFakeStore())
			sess.SetTreeField("wildlifeValue", tt.wildlife)
			sess.SetLOD(tt.lod)
			for _, label := range tt.checks {
				sess.ToggleIndicator(label)
			}
			assert.Equal(t, tt.want, sess.RecommendedDecision())
		})
	}
}

func TestSession_ContinueLODDetails_PreloadsRecommendation(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SetTreeField("wildlifeValue", "High")
	sess.SetLOD(2)
	sess.ToggleIndicator("Dead Limbs")

	require.NoError(t, sess.ContinueLODDetails())
	assert.Equal(t, StepDecision, sess.Step())
	assert.Equal(t, model.DecisionNWZ, sess.Decision())
}

func TestSession_SelectDecision_ClearsOtherQualifier(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.SelectDecision(model.DecisionOther)
	sess.SetDecisionOther("remove one limb")
	sess.SelectDecision(model.DecisionSafe)
	assert.Empty(t, sess.DecisionOther())
}

// --- finish ---

func finishFreshTree(t *testing.T, sess *Session, lod model.LOD, indicators ...string) {
	t.Helper()
	sess.StartTreeAssessment()
	fillTreeDraft(sess)
	require.NoError(t, sess.ContinueTree())
	sess.SetLOD(lod)
	for _, label := range indicators {
		sess.ToggleIndicator(label)
	}
	require.NoError(t, sess.ContinueLOD())
	require.NoError(t, sess.ContinueLODDetails())
	require.NoError(t, sess.FinishDecision(context.Background()))
}

func TestSession_FinishDecision_RequiresLOD(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	sess.StartTreeAssessment()
	fillTreeDraft(sess)

	err := sess.FinishDecision(context.Background())
	assert.True(t, IsValidation(err))
	assert.Empty(t, st.trees, "validation failures must not touch the store")
}

func TestSession_FinishDecision_AssignsSequentialNumbers(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)

	finishFreshTree(t, sess, 2, "Dead Limbs")
	finishFreshTree(t, sess, 1, "Highly unstable tree")

	trees := sess.Trees()
	require.Len(t, trees, 2)
	assert.Equal(t, 2, trees[0].TreeNumber, "newest record is listed first")
	assert.Equal(t, 1, trees[1].TreeNumber)
	assert.Equal(t, sess.ActiveDateKey(), trees[0].DateKey)
	assert.Equal(t, StepSummary, sess.Step())
}

func TestSession_FinishDecision_NumberingAfterDelete(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)

	finishFreshTree(t, sess, 2, "Dead Limbs")
	finishFreshTree(t, sess, 2, "Tree Lean")
	require.NoError(t, sess.DeleteRecord(context.Background(), sess.Trees()[1])) // tree #1

	// One record remains, so the next number is count+1 = 2; existing
	// records keep their numbers.
	finishFreshTree(t, sess, 2, "Hazardous Top")

	trees := sess.Trees()
	require.Len(t, trees, 2)
	assert.Equal(t, 2, trees[0].TreeNumber)
	assert.Equal(t, 2, trees[1].TreeNumber)
}

func TestSession_FinishDecision_ComposesOtherDecision(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)

	sess.StartTreeAssessment()
	fillTreeDraft(sess)
	require.NoError(t, sess.ContinueTree())
	sess.SetLOD(2)
	sess.ToggleIndicator("Dead Limbs")
	require.NoError(t, sess.ContinueLOD())
	require.NoError(t, sess.ContinueLODDetails())
	sess.SelectDecision(model.DecisionOther)
	sess.SetDecisionOther("remove one limb")
	require.NoError(t, sess.FinishDecision(context.Background()))

	require.Len(t, st.trees, 1)
	assert.Equal(t, "Other - remove one limb", st.trees[0].Decision)
}

func TestSession_FinishDecision_MeasurementsOnlyForLOD23(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)

	sess.StartTreeAssessment()
	fillTreeDraft(sess)
	require.NoError(t, sess.ContinueTree())
	sess.SetLOD(1)
	sess.ToggleIndicator("Highly unstable tree")
	sess.SetAST("12")
	sess.SetRST("10")
	require.NoError(t, sess.ContinueLOD())
	require.NoError(t, sess.ContinueLODDetails())
	require.NoError(t, sess.FinishDecision(context.Background()))

	require.Len(t, st.trees, 1)
	assert.Empty(t, st.trees[0].AST)
	assert.Empty(t, st.trees[0].RST)
}

func TestSession_FinishDecision_StoreFailureKeepsDraft(t *testing.T) {
	st := newFakeStore()
	st.failCreate = eris.New("disk full")
	sess := newHydratedSession(t, st)

	sess.StartTreeAssessment()
	fillTreeDraft(sess)
	require.NoError(t, sess.ContinueTree())
	sess.SetLOD(2)
	sess.ToggleIndicator("Dead Limbs")
	require.NoError(t, sess.ContinueLOD())
	require.NoError(t, sess.ContinueLODDetails())

	err := sess.FinishDecision(context.Background())
	require.Error(t, err)
	assert.False(t, IsValidation(err))

	// Draft and step survive for a retry.
	assert.Equal(t, StepDecision, sess.Step())
	assert.Equal(t, model.LOD(2), sess.LOD())
	assert.Equal(t, "Douglas Fir", sess.Tree()["species"])
	assert.Empty(t, sess.Trees())

	st.failCreate = nil
	require.NoError(t, sess.FinishDecision(context.Background()))
	assert.Len(t, sess.Trees(), 1)
}

// --- edit and delete ---

func TestSession_BeginEdit_PreservesIdentity(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")
	finishFreshTree(t, sess, 2, "Tree Lean")
	original := sess.Trees()[1] // tree number 1

	sess.BeginEdit(original)
	assert.True(t, sess.Editing())
	assert.Equal(t, StepTree, sess.Step())
	sess.SetTreeField("species", "Western Redcedar")
	require.NoError(t, sess.ContinueTree())
	require.NoError(t, sess.ContinueLOD())
	require.NoError(t, sess.ContinueLODDetails())
	require.NoError(t, sess.FinishDecision(context.Background()))

	trees := sess.Trees()
	require.Len(t, trees, 2)
	edited := trees[1]
	assert.Equal(t, original.ID, edited.ID)
	assert.Equal(t, original.TreeNumber, edited.TreeNumber)
	assert.Equal(t, original.DateKey, edited.DateKey)
	assert.Equal(t, "Western Redcedar", edited.Tree["species"])
	assert.False(t, sess.Editing())
}

func TestSession_BeginEdit_DecodesStoredDecision(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.BeginEdit(model.TreeRecord{
		ID: "tree-1", TreeNumber: 1, DateKey: "2024-03-05",
		LOD: 2, Decision: "Dangerous - Other - lodged debris",
	})
	assert.Equal(t, model.DecisionOther, sess.Decision())
	assert.Equal(t, "lodged debris", sess.DecisionOther())
}

func TestSession_DeleteRecord(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")
	rec := sess.Trees()[0]

	require.NoError(t, sess.DeleteRecord(context.Background(), rec))
	assert.Empty(t, sess.Trees())
	assert.Empty(t, st.trees)
}

func TestSession_DeleteRecord_StoreFailureKeepsSet(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")

	st.failDelete = eris.New("database locked")
	err := sess.DeleteRecord(context.Background(), sess.Trees()[0])
	require.Error(t, err)
	assert.Len(t, sess.Trees(), 1, "the set shrinks only after the store confirms")
}

func TestSession_DeleteRecord_CancelsMatchingEdit(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")
	rec := sess.Trees()[0]

	sess.BeginEdit(rec)
	require.NoError(t, sess.DeleteRecord(context.Background(), rec))
	assert.False(t, sess.Editing())
	assert.Empty(t, sess.Tree())
}

// --- projections ---

func TestSession_TreesForActiveDate(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")

	require.NoError(t, sess.JumpToDaySummary(context.Background(), "2024-03-05"))
	finishFreshTree(t, sess, 2, "Tree Lean")
	finishFreshTree(t, sess, 2, "Hazardous Top")

	active := sess.TreesForActiveDate()
	require.Len(t, active, 2)
	for _, rec := range active {
		assert.Equal(t, "2024-03-05", rec.DateKey)
	}
	assert.Len(t, sess.Trees(), 3)
}

func TestSession_GoToSummary(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.StartTreeAssessment()
	sess.SetTreeField("species", "Douglas Fir")

	sess.GoToSummary()
	assert.Equal(t, StepSummary, sess.Step())
	// Draft and records are untouched.
	assert.Equal(t, "Douglas Fir", sess.Tree()["species"])
}

func TestSession_CanContinueTree(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	sess.StartTreeAssessment()
	assert.False(t, sess.CanContinueTree())
	fillTreeDraft(sess)
	assert.True(t, sess.CanContinueTree())
}

func TestSession_CurrentDangerList(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	assert.Empty(t, sess.CurrentDangerList())
	sess.SetLOD(4)
	assert.Equal(t, model.DangerIndicators[4], sess.CurrentDangerList())
}

func TestSession_DateValue(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	require.NoError(t, sess.JumpToDaySummary(context.Background(), "2024-03-05"))
	assert.Equal(t, "2024-03-05", model.DayKey(sess.DateValue()))
}

// --- day switching ---

func TestSession_JumpToDaySummary(t *testing.T) {
	st := newFakeStore()
	st.general["2024-03-05"] = model.GeneralInfo{"assessorName": "J. Moss", "date": "3/5/2024"}
	sess := newHydratedSession(t, st)

	require.NoError(t, sess.JumpToDaySummary(context.Background(), "2024-03-05"))
	assert.Equal(t, "2024-03-05", sess.ActiveDateKey())
	assert.Equal(t, "J. Moss", sess.General().Get("assessorName"))
	assert.Equal(t, StepSummary, sess.Step())
}

func TestSession_JumpToDaySummary_BadKey(t *testing.T) {
	sess := newHydratedSession(t, newFakeStore())
	assert.True(t, IsValidation(sess.JumpToDaySummary(context.Background(), "not-a-day")))
}

func TestSession_JumpToDaySummary_NumbersScopedPerDay(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	finishFreshTree(t, sess, 2, "Dead Limbs")

	require.NoError(t, sess.JumpToDaySummary(context.Background(), "2024-03-05"))
	finishFreshTree(t, sess, 2, "Tree Lean")

	trees := sess.Trees()
	require.Len(t, trees, 2)
	assert.Equal(t, 1, trees[0].TreeNumber, "numbering restarts on a new day")
	assert.Equal(t, "2024-03-05", trees[0].DateKey)
}

func TestSession_StartNewDay(t *testing.T) {
	st := newFakeStore()
	sess := newHydratedSession(t, st)
	sess.SetTreeField("species", "Douglas Fir")

	require.NoError(t, sess.StartNewDay(context.Background()))
	assert.Equal(t, StepGeneral, sess.Step())
	assert.Empty(t, sess.Tree())
	assert.NotEmpty(t, sess.General().Get("date"))
}
