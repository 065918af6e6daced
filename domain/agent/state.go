package agent

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxIterations is the loop budget used when none is configured.
const DefaultMaxIterations = 10

// State is the mutable state of one query run.
// It is the aggregate root for the agent domain and is owned by a single
// orchestrator goroutine; it is not safe for concurrent use.
type State struct {
	id             string
	query          string
	classification Classification
	status         Status
	transcript     []Turn
	metadata       Metadata
	fields         FieldSet
	iteration      int
	maxIterations  int
	pending        *ProposedCall
	errors         []RunError
	notes          []string
	referenceTime  time.Time
	startTime      time.Time
	endTime        time.Time
	clock          func() time.Time
}

// StateOption configures a new State.
type StateOption func(*State)

// WithMaxIterations sets the loop budget.
func WithMaxIterations(n int) StateOption {
	return func(s *State) {
		s.maxIterations = n
	}
}

// WithFields sets the recognized metadata fields.
func WithFields(fields FieldSet) StateOption {
	return func(s *State) {
		s.fields = fields
	}
}

// WithReferenceTime anchors relative time expressions for the run.
func WithReferenceTime(t time.Time) StateOption {
	return func(s *State) {
		s.referenceTime = t
	}
}

// WithClock sets the clock used for transcript timestamps.
func WithClock(clock func() time.Time) StateOption {
	return func(s *State) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewState creates the state for a run of query.
func NewState(id, query string, opts ...StateOption) (*State, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	s := &State{
		id:             id,
		query:          query,
		classification: ClassificationUnclassified,
		status:         StatusRunning,
		transcript:     make([]Turn, 0, 8),
		metadata:       make(Metadata),
		fields:         NewFieldSet(DefaultFields()...),
		maxIterations:  DefaultMaxIterations,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxIterations < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, s.maxIterations)
	}

	s.startTime = s.clock()
	if s.referenceTime.IsZero() {
		s.referenceTime = s.startTime
	}
	return s, nil
}

// ID returns the run identifier.
func (s *State) ID() string { return s.id }

// Query returns the original query text.
func (s *State) Query() string { return s.query }

// Classification returns the classifier verdict.
func (s *State) Classification() Classification { return s.classification }

// Status returns the run status.
func (s *State) Status() Status { return s.status }

// IsRunning returns true while the run status is running.
func (s *State) IsRunning() bool { return s.status == StatusRunning }

// Fields returns the recognized metadata fields.
func (s *State) Fields() FieldSet { return s.fields }

// ReferenceTime returns the instant relative expressions are anchored on.
func (s *State) ReferenceTime() time.Time { return s.referenceTime }

// Now returns the current time from the run clock.
func (s *State) Now() time.Time { return s.clock() }

// Classify records the classifier verdict. It can only be set once.
func (s *State) Classify(c Classification) error {
	if !c.IsDecided() {
		return fmt.Errorf("%w: %q", ErrInvalidClassification, c)
	}
	if s.classification.IsDecided() {
		return ErrAlreadyClassified
	}
	s.classification = c
	return nil
}

// Complete marks the run completed. A non-empty note is kept in the result.
func (s *State) Complete(note string) error {
	if err := s.finish(StatusCompleted); err != nil {
		return err
	}
	if note != "" {
		s.notes = append(s.notes, note)
	}
	return nil
}

// Fail marks the run failed with a reason kept as a note.
func (s *State) Fail(reason string) error {
	if err := s.finish(StatusFailed); err != nil {
		return err
	}
	if reason != "" {
		s.notes = append(s.notes, reason)
	}
	return nil
}

// Reject marks an out of scope run rejected.
func (s *State) Reject() error {
	if s.classification != ClassificationOutOfScope {
		return ErrNotRejectable
	}
	return s.finish(StatusRejected)
}

func (s *State) finish(to Status) error {
	if s.status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrStatusTerminal, s.status, to)
	}
	s.status = to
	s.endTime = s.clock()
	return nil
}

// Append adds a turn to the transcript and returns it with Seq and Timestamp set.
func (s *State) Append(t Turn) Turn {
	t.Seq = len(s.transcript) + 1
	if t.Timestamp.IsZero() {
		t.Timestamp = s.clock()
	}
	s.transcript = append(s.transcript, t)
	return t
}

// Transcript returns a copy of the transcript.
func (s *State) Transcript() []Turn {
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Len returns the number of transcript turns.
func (s *State) Len() int { return len(s.transcript) }

// Metadata returns a snapshot of the extracted metadata.
func (s *State) Metadata() Metadata { return s.metadata.Clone() }

// MergeMetadata folds contributed fields into the extracted metadata.
// Fields outside the field set are rejected; no field is ever removed.
func (s *State) MergeMetadata(contrib map[string]any, policy MergePolicy) MergeOutcome {
	if len(contrib) == 0 {
		return MergeOutcome{}
	}
	return s.metadata.merge(s.fields, contrib, policy)
}

// Iteration returns the number of completed loop passes.
func (s *State) Iteration() int { return s.iteration }

// MaxIterations returns the loop budget.
func (s *State) MaxIterations() int { return s.maxIterations }

// BudgetExhausted returns true once the loop budget is used up.
func (s *State) BudgetExhausted() bool { return s.iteration >= s.maxIterations }

// NextIteration counts one loop pass.
func (s *State) NextIteration() error {
	if s.BudgetExhausted() {
		return ErrIterationBudget
	}
	s.iteration++
	return nil
}

// Propose records the call awaiting validation.
func (s *State) Propose(call ProposedCall) { s.pending = &call }

// Pending returns the call awaiting validation, if any.
func (s *State) Pending() (ProposedCall, bool) {
	if s.pending == nil {
		return ProposedCall{}, false
	}
	return *s.pending, true
}

// ClearPending drops the pending call at the end of a loop pass.
func (s *State) ClearPending() { s.pending = nil }

// RecordError appends a run error.
func (s *State) RecordError(e RunError) { s.errors = append(s.errors, e) }

// Errors returns a copy of the recorded errors.
func (s *State) Errors() []RunError {
	out := make([]RunError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Notes returns a copy of the run notes.
func (s *State) Notes() []string {
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}

// AddNote appends a note without changing status.
func (s *State) AddNote(note string) { s.notes = append(s.notes, note) }

// Duration returns how long the run took, or has taken so far.
func (s *State) Duration() time.Duration {
	if s.endTime.IsZero() {
		return s.clock().Sub(s.startTime)
	}
	return s.endTime.Sub(s.startTime)
}

// Result builds the FinalResult. The status is passed explicitly because the
// finalizer may report a failure after the loop completed.
func (s *State) Result(status Status, summary string) FinalResult {
	return FinalResult{
		RunID:          s.id,
		Query:          s.query,
		Status:         status,
		Classification: s.classification,
		Summary:        summary,
		Metadata:       s.metadata.Clone(),
		Errors:         s.Errors(),
		Notes:          s.Notes(),
		Iterations:     s.iteration,
		DurationMS:     s.clock().Sub(s.startTime).Milliseconds(),
	}
}
