// Package session implements the assessment workflow state machine: the
// ordered data-collection steps for one field day, the derived decision
// recommendation, and the synchronization between the in-memory draft and
// the durable record store.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/treeline-forestry/dta-cli/internal/model"
	"github.com/treeline-forestry/dta-cli/internal/store"
)

// Step is the session's position in the assessment flow.
type Step string

const (
	StepGeneral    Step = "general"
	StepTree       Step = "tree"
	StepLOD        Step = "lod"
	StepLODDetails Step = "lodDetails"
	StepDecision   Step = "decision"
	StepSummary    Step = "summary"
)

// Session owns the in-progress draft of one assessment day: general info,
// the current tree flow, and the loaded record set. It is explicitly
// constructed and threaded to callers; there is no package-level state.
// Persisted records are only ever mutated through the store.
type Session struct {
	store store.Store

	step      Step
	general   model.GeneralInfo
	dateValue time.Time

	tree          map[string]string
	lod           model.LOD
	lodChecks     map[string]bool
	ast, rst      string
	decision      string
	decisionOther string
	editing       *model.TreeRecord

	trees    []model.TreeRecord
	hydrated bool
}

// New creates a Session for the current day backed by st. Call Hydrate
// before mutating general info so saved state is never clobbered by an
// empty draft.
func New(st store.Store) *Session {
	return &Session{
		store:     st,
		step:      StepGeneral,
		general:   model.GeneralInfo{"date": ""},
		dateValue: time.Now(),
		tree:      map[string]string{},
		lodChecks: map[string]bool{},
	}
}

// Hydrate loads the persisted general page and tree records into the
// session. It flips the hydrated latch exactly once; general-info saves
// are suppressed until it has. When the loaded general page already
// satisfies every required field, the session rests at the summary step.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.hydrated {
		return nil
	}

	trees, err := s.store.ListTrees(ctx)
	if err != nil {
		return eris.Wrap(err, "session: load tree records")
	}

	general, err := s.store.LoadGeneral(ctx, s.ActiveDateKey())
	if err != nil {
		return eris.Wrap(err, "session: load general info")
	}
	if general != nil {
		s.general = general
		if parsed, ok := model.ParseDateLabel(general.Get("date")); ok {
			s.dateValue = parsed
		}
	}

	s.trees = trees
	s.hydrated = true

	if general != nil && s.CanContinueGeneral() {
		s.step = StepSummary
	}

	zap.L().Debug("session hydrated",
		zap.Int("trees", len(trees)),
		zap.Bool("general_loaded", general != nil),
		zap.String("step", string(s.step)))
	return nil
}

// Hydrated reports whether the initial load has settled.
func (s *Session) Hydrated() bool { return s.hydrated }

// Step returns the current flow position.
func (s *Session) Step() Step { return s.step }

// GoToSummary returns to the summary rest state without touching any
// persisted data or the in-memory draft.
func (s *Session) GoToSummary() { s.step = StepSummary }

// --- general info ---

// General returns the current general-info draft.
func (s *Session) General() model.GeneralInfo { return s.general }

// ActiveDateKey is the ISO day key of the session's active day.
func (s *Session) ActiveDateKey() string { return model.DayKey(s.dateValue) }

// DateValue returns the active day's date.
func (s *Session) DateValue() time.Time { return s.dateValue }

// SetGeneralField updates one general-info field and persists the page.
// Before hydration the mutation is applied in memory only.
func (s *Session) SetGeneralField(ctx context.Context, key, value string) error {
	s.general[key] = value
	return s.persistGeneral(ctx)
}

// SetDate changes the active day, updating the date label field.
func (s *Session) SetDate(ctx context.Context, t time.Time) error {
	s.dateValue = t
	s.general["date"] = model.FormatDateLabel(t)
	return s.persistGeneral(ctx)
}

func (s *Session) persistGeneral(ctx context.Context) error {
	if !s.hydrated {
		return nil
	}
	if err := s.store.SaveGeneral(ctx, s.ActiveDateKey(), s.general); err != nil {
		return eris.Wrap(err, "session: save general info")
	}
	return nil
}

// CanContinueGeneral reports whether every required general field is
// non-empty after trimming.
func (s *Session) CanContinueGeneral() bool {
	for _, key := range model.RequiredKeys(model.GeneralFields) {
		if strings.TrimSpace(s.general.Get(key)) == "" {
			return false
		}
	}
	return true
}

// ContinueGeneral advances from the general page to the summary rest
// state. Blocked with a ValidationError while required fields are empty.
func (s *Session) ContinueGeneral() error {
	if missing := s.missingGeneral(); len(missing) > 0 {
		return &ValidationError{Op: "continue general", Fields: missing}
	}
	s.step = StepSummary
	return nil
}

func (s *Session) missingGeneral() []string {
	var missing []string
	for _, key := range model.RequiredKeys(model.GeneralFields) {
		if strings.TrimSpace(s.general.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// --- tree flow ---

// Tree returns the current tree-attributes draft.
func (s *Session) Tree() map[string]string { return s.tree }

// SetTreeField updates one tree attribute in the draft.
func (s *Session) SetTreeField(key, value string) {
	s.tree[key] = value
}

// StartTreeAssessment clears any tree draft and enters the tree step.
func (s *Session) StartTreeAssessment() {
	s.ResetTreeFlow()
	s.step = StepTree
}

// CanContinueTree reports whether every required tree field is non-empty
// after trimming.
func (s *Session) CanContinueTree() bool {
	for _, key := range model.RequiredKeys(model.TreeFields) {
		if strings.TrimSpace(s.tree[key]) == "" {
			return false
		}
	}
	return true
}

// ContinueTree advances tree → lod once the required attributes are set.
func (s *Session) ContinueTree() error {
	var missing []string
	for _, key := range model.RequiredKeys(model.TreeFields) {
		if strings.TrimSpace(s.tree[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Op: "continue tree", Fields: missing}
	}
	s.step = StepLOD
	return nil
}

// LOD returns the chosen danger level, zero when unset.
func (s *Session) LOD() model.LOD { return s.lod }

// SetLOD selects the danger level. Any change clears the indicator
// selection: levels share labels, and a stale selection would
// misrepresent the re-assessment.
func (s *Session) SetLOD(l model.LOD) {
	if !l.Valid() {
		l = 0
	}
	s.lod = l
	s.lodChecks = map[string]bool{}
}

// ContinueLOD advances lod → lodDetails once a level is chosen.
func (s *Session) ContinueLOD() error {
	if !s.lod.Valid() {
		return &ValidationError{Op: "continue lod", Fields: []string{"lod"}}
	}
	s.step = StepLODDetails
	return nil
}

// CurrentDangerList is the indicator catalog for the chosen level.
func (s *Session) CurrentDangerList() []string {
	return model.DangerIndicators[s.lod]
}

// LODChecks returns a copy of the current indicator selection.
func (s *Session) LODChecks() map[string]bool {
	checks := make(map[string]bool, len(s.lodChecks))
	for label, v := range s.lodChecks {
		checks[label] = v
	}
	return checks
}

// ToggleIndicator flips one indicator. At level 4 the selection is
// single-choice: picking a label replaces the whole set.
func (s *Session) ToggleIndicator(label string) {
	if s.lod == 4 {
		s.lodChecks = map[string]bool{label: true}
		return
	}
	s.lodChecks[label] = !s.lodChecks[label]
}

// LOD4Selection returns the single selected level-4 label, if any.
func (s *Session) LOD4Selection() string {
	if s.lod != 4 {
		return ""
	}
	for label, checked := range s.lodChecks {
		if checked {
			return label
		}
	}
	return ""
}

// AST returns the actual stem thickness draft.
func (s *Session) AST() string { return s.ast }

// RST returns the required stem thickness draft.
func (s *Session) RST() string { return s.rst }

// SetAST records the actual stem thickness (levels 2 and 3 only).
func (s *Session) SetAST(v string) { s.ast = v }

// SetRST records the required stem thickness (levels 2 and 3 only).
func (s *Session) SetRST(v string) { s.rst = v }

// ContinueLODDetails advances lodDetails → decision. When the assessor has
// not yet picked a decision, the recommended one is preloaded as the
// current selection.
func (s *Session) ContinueLODDetails() error {
	if !s.lod.Valid() {
		return &ValidationError{Op: "continue lod details", Fields: []string{"lod"}}
	}
	if s.decision == "" {
		s.decision = s.RecommendedDecision()
	}
	s.step = StepDecision
	return nil
}

// --- decision ---

// Decision returns the currently selected decision base.
func (s *Session) Decision() string { return s.decision }

// DecisionOther returns the free-text qualifier for the Other outcome.
func (s *Session) DecisionOther() string { return s.decisionOther }

// SelectDecision picks a decision outcome, discarding the Other qualifier
// when a non-Other outcome is chosen.
func (s *Session) SelectDecision(decision string) {
	s.decision = decision
	if decision != model.DecisionOther {
		s.decisionOther = ""
	}
}

// SetDecisionOther sets the free-text qualifier for the Other outcome.
func (s *Session) SetDecisionOther(v string) { s.decisionOther = v }

// RecommendedDecision derives the advisory decision from the current
// danger level, indicator selection, and wildlife value. It recomputes
// live and is never persisted on its own.
func (s *Session) RecommendedDecision() string {
	hasDanger := false
	if s.lod == 4 {
		hasDanger = s.lodChecks[model.NoneOfTheAbove]
	} else {
		for _, checked := range s.lodChecks {
			if checked {
				hasDanger = true
				break
			}
		}
	}
	if !hasDanger {
		return model.DecisionSafe
	}
	if s.tree["wildlifeValue"] == "High" {
		return model.DecisionNWZ
	}
	return model.DecisionFallTree
}

// FinishDecision composes the decision string, submits the tree record to
// the store (create for a fresh flow, update when editing), and returns to
// summary with a cleared draft. A missing danger level is a validation
// failure with no store I/O; a store failure leaves the draft and the step
// intact so the assessor can retry.
func (s *Session) FinishDecision(ctx context.Context) error {
	if !s.lod.Valid() {
		return &ValidationError{Op: "finish decision", Fields: []string{"lod"}}
	}

	base := s.decision
	if base == "" {
		base = s.RecommendedDecision()
	}
	composed := model.BuildDecision(base, s.decisionOther)

	dateKey := s.ActiveDateKey()
	var id string
	treeNumber := s.countForDay(dateKey) + 1
	if s.editing != nil {
		id = s.editing.ID
		dateKey = s.editing.DateKey
		treeNumber = s.editing.TreeNumber
	}

	rec := model.TreeRecord{
		ID:         id,
		TreeNumber: treeNumber,
		DateKey:    dateKey,
		Tree:       copyStrings(s.tree),
		LOD:        s.lod,
		LODChecks:  s.LODChecks(),
		Decision:   composed,
	}
	// Stem measurements are only meaningful at levels 2 and 3.
	if s.lod == 2 || s.lod == 3 {
		rec.AST = s.ast
		rec.RST = s.rst
	}

	if s.editing != nil {
		newID, err := s.store.UpdateTree(ctx, rec)
		if err != nil {
			return eris.Wrap(err, "session: save tree record")
		}
		rec.ID = newID
		for i := range s.trees {
			if s.trees[i].ID == s.editing.ID {
				s.trees[i] = rec
				break
			}
		}
	} else {
		newID, err := s.store.CreateTree(ctx, rec)
		if err != nil {
			return eris.Wrap(err, "session: save tree record")
		}
		rec.ID = newID
		s.trees = append([]model.TreeRecord{rec}, s.trees...)
	}

	zap.L().Info("tree record saved",
		zap.String("id", rec.ID),
		zap.String("date_key", rec.DateKey),
		zap.Int("tree_number", rec.TreeNumber),
		zap.Bool("edited", s.editing != nil))

	s.step = StepSummary
	s.ResetTreeFlow()
	return nil
}

func (s *Session) countForDay(dateKey string) int {
	n := 0
	for _, rec := range s.trees {
		if rec.DateKey == dateKey {
			n++
		}
	}
	return n
}

// --- records ---

// Trees returns the loaded record set, most recently created first.
func (s *Session) Trees() []model.TreeRecord { return s.trees }

// TreesForActiveDate returns the records belonging to the active day, in
// load order.
func (s *Session) TreesForActiveDate() []model.TreeRecord {
	key := s.ActiveDateKey()
	var out []model.TreeRecord
	for _, rec := range s.trees {
		if rec.DateKey == key {
			out = append(out, rec)
		}
	}
	return out
}

// Editing reports whether the current tree flow edits an existing record.
func (s *Session) Editing() bool { return s.editing != nil }

// BeginEdit loads an existing record into the draft, decoding its stored
// decision, and enters the tree step. Finishing will update the record in
// place, preserving its identifier, day, and tree number.
func (s *Session) BeginEdit(rec model.TreeRecord) {
	base, other := model.ParseDecision(rec.Decision)
	edited := rec
	s.editing = &edited
	s.tree = copyStrings(rec.Tree)
	s.lod = rec.LOD
	s.lodChecks = copyBools(rec.LODChecks)
	s.ast = rec.AST
	s.rst = rec.RST
	s.decision = base
	s.decisionOther = other
	s.step = StepTree
}

// DeleteRecord removes a persisted record. The in-memory set shrinks only
// after the store confirms the delete.
func (s *Session) DeleteRecord(ctx context.Context, rec model.TreeRecord) error {
	if err := s.store.DeleteTree(ctx, rec); err != nil {
		return eris.Wrap(err, "session: delete tree record")
	}
	kept := s.trees[:0]
	for _, item := range s.trees {
		if item.ID != rec.ID {
			kept = append(kept, item)
		}
	}
	s.trees = kept
	if s.editing != nil && s.editing.ID == rec.ID {
		s.ResetTreeFlow()
	}
	return nil
}

// ResetTreeFlow discards the in-memory tree draft. Persisted records are
// untouched.
func (s *Session) ResetTreeFlow() {
	s.tree = map[string]string{}
	s.lod = 0
	s.lodChecks = map[string]bool{}
	s.ast = ""
	s.rst = ""
	s.decision = ""
	s.decisionOther = ""
	s.editing = nil
}

// StartNewDay resets the session to a fresh general page for today.
func (s *Session) StartNewDay(ctx context.Context) error {
	today := time.Now()
	s.dateValue = today
	s.general = model.GeneralInfo{"date": model.FormatDateLabel(today)}
	s.ResetTreeFlow()
	s.step = StepGeneral
	return s.persistGeneral(ctx)
}

// JumpToDaySummary switches the active day to dateKey, loading that day's
// saved general page, and rests at the summary step.
func (s *Session) JumpToDaySummary(ctx context.Context, dateKey string) error {
	t, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return &ValidationError{Op: "jump to day", Fields: []string{"dateKey"}}
	}
	s.dateValue = t

	general, err := s.store.LoadGeneral(ctx, dateKey)
	if err != nil {
		return eris.Wrap(err, "session: load general info")
	}
	if general != nil {
		s.general = general
	} else {
		s.general = model.GeneralInfo{"date": model.FormatDateLabel(t)}
	}
	s.general["date"] = model.FormatDateLabel(t)

	s.ResetTreeFlow()
	s.step = StepSummary
	return nil
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBools(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
