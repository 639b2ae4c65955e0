package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"brocode-session-service/internal/domain"
)

const (
	// DefaultMaxAttempts is the per-question execution budget.
	DefaultMaxAttempts = 5
	// DefaultDuration is the full challenge length for a fresh session.
	DefaultDuration = 3 * time.Hour
	// timerKeyPrefix namespaces the persisted countdown value.
	timerKeyPrefix = "brocode:timer:"
)

// SessionAPI starts sessions and reports their server-side status.
type SessionAPI interface {
	// Start begins a new session. domain.ErrSessionActive means one is
	// already running and is recoverable via Status.
	Start(ctx context.Context) (domain.SessionStatus, error)
	Status(ctx context.Context) (domain.SessionStatus, error)
}

// QuestionSource lists the public question set for the challenge.
type QuestionSource interface {
	ListQuestions(ctx context.Context) ([]domain.Question, error)
}

// SubmissionAPI persists per-question answers and receives the final submit.
type SubmissionAPI interface {
	Update(ctx context.Context, questionID string, upd domain.SubmissionUpdate) error
	SubmitAll(ctx context.Context, entries []domain.SubmissionEntry) (domain.ResultSummary, error)
}

// State is the controller's lifecycle phase.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateSubmitting   State = "submitting"
	StateSubmitted    State = "submitted"
	StateFailed       State = "failed"
)

// MarkState tracks the optimistic mark transition for one question, so the
// intermediate state is observable rather than a boolean.
type MarkState string

const (
	MarkNone      MarkState = ""
	MarkPending   MarkState = "pending"
	MarkConfirmed MarkState = "confirmed"
	MarkReverted  MarkState = "reverted"
)

// ExecStatus is the ephemeral per-question execution feedback. It never
// survives a reload and is overwritten by each new attempt.
type ExecStatus struct {
	Loading bool   `json:"loading"`
	Message string `json:"message,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Config carries the session-level knobs.
type Config struct {
	Duration    time.Duration
	MaxAttempts int
	Shuffle     bool
	Seed        int64 // 0 means time-seeded
	SessionKey  string
}

// Controller orchestrates one participant's challenge session: it owns the
// registry, drives navigation and the execution gate, and runs the two
// submission paths. External calls never propagate past it except the fatal
// initialization class.
type Controller struct {
	sessions    SessionAPI
	questions   QuestionSource
	submissions SubmissionAPI
	store       KeyValueStore
	gate        *Gate
	cfg         Config

	mu       sync.Mutex
	state    State
	registry *Registry
	timer    *Countdown
	current  int
	exec     map[string]*ExecStatus
	marks    map[string]MarkState
	result   *domain.ResultSummary
	fatal    error
}

func NewController(sessions SessionAPI, questions QuestionSource, submissions SubmissionAPI, judge Judge, store KeyValueStore, cfg Config) *Controller {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "default"
	}
	return &Controller{
		sessions:    sessions,
		questions:   questions,
		submissions: submissions,
		store:       store,
		gate:        NewGate(judge, cfg.MaxAttempts),
		cfg:         cfg,
		state:       StateInitializing,
		exec:        make(map[string]*ExecStatus),
		marks:       make(map[string]MarkState),
	}
}

// Start initializes the session: start (or recover) the server session,
// fetch the question list and the submission status concurrently, join the
// two, build the registry and reconcile. The countdown runs until ctx is
// cancelled; its zero callback triggers AutoSubmit. Any failure here is
// fatal and the controller transitions to Failed.
func (c *Controller) Start(ctx context.Context) error {
	if _, err := c.sessions.Start(ctx); err != nil {
		if !errors.Is(err, domain.ErrSessionActive) {
			return c.fail(fmt.Errorf("start session: %w", err))
		}
		// Recoverable: an active session exists, resume it below.
	}

	// Two-phase join: reconcile must not run before both fetches resolve.
	var (
		questionList []domain.Question
		status       domain.SessionStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		questionList, err = c.questions.ListQuestions(gctx)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		status, err = c.sessions.Status(gctx)
		if err != nil {
			return fmt.Errorf("fetch status: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.fail(err)
	}
	if len(questionList) == 0 {
		return c.fail(domain.ErrNoQuestions)
	}

	var rnd *rand.Rand
	if c.cfg.Shuffle {
		seed := c.cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rnd = rand.New(rand.NewSource(seed))
	}

	c.mu.Lock()
	c.registry = NewRegistry(questionList, rnd)
	c.registry.Reconcile(status.Submissions)
	c.timer = NewCountdown(ctx, c.store, timerKeyPrefix+c.cfg.SessionKey, c.cfg.Duration, c.AutoSubmit)
	c.state = StateReady
	c.mu.Unlock()

	go c.timer.Run(ctx)
	return nil
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = StateFailed
	c.fatal = err
	c.mu.Unlock()
	return err
}

// State returns the lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FatalErr returns the initialization error, if any.
func (c *Controller) FatalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Timer exposes the session countdown.
func (c *Controller) Timer() *Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer
}

// Current returns the record the participant is looking at.
func (c *Controller) Current() (domain.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return domain.Submission{}, domain.ErrNoActiveSession
	}
	return c.registry.ByOrdinal(c.current)
}

// Snapshot returns all records in presentation order.
func (c *Controller) Snapshot() []domain.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		return nil
	}
	return c.registry.Snapshot()
}

// Result returns the terminal result summary once the session is submitted.
func (c *Controller) Result() (domain.ResultSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.ResultSummary{}, false
	}
	return *c.result, true
}

// SetCurrent jumps to an ordinal, bounded to the registry.
func (c *Controller) SetCurrent(ordinal int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCurrentLocked(ordinal)
}

// Next advances one question; refused at the last ordinal.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCurrentLocked(c.current + 1)
}

// Prev goes back one question; refused at the first ordinal.
func (c *Controller) Prev() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCurrentLocked(c.current - 1)
}

func (c *Controller) setCurrentLocked(ordinal int) error {
	if err := c.ensureReadyLocked(); err != nil {
		return err
	}
	if ordinal < 0 || ordinal >= c.registry.Len() {
		return domain.ErrOrdinalOutOfRange
	}
	c.current = ordinal
	return nil
}

// Edit updates the current question's answer text. Locked questions refuse
// edits.
func (c *Controller) Edit(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureReadyLocked(); err != nil {
		return err
	}
	rec, err := c.registry.ByOrdinal(c.current)
	if err != nil {
		return err
	}
	if rec.IsLocked {
		return domain.ErrQuestionLocked
	}
	_, err = c.registry.Apply(rec.QuestionID, func(s domain.Submission) domain.Submission {
		s.Answer = text
		return s
	})
	return err
}

// Mark applies a status tag to the current question optimistically, then
// persists it with the current answer. On a persist failure the status is
// rolled back to not_attempted and the error returned; the participant can
// retry.
func (c *Controller) Mark(ctx context.Context, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	c.mu.Lock()
	if err := c.ensureReadyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	rec, err := c.registry.ByOrdinal(c.current)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	rec, err = c.registry.Apply(rec.QuestionID, func(s domain.Submission) domain.Submission {
		s.Status = status
		return s
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.marks[rec.QuestionID] = MarkPending
	c.mu.Unlock()

	persistErr := c.submissions.Update(ctx, rec.QuestionID, domain.SubmissionUpdate{
		CodeAnswer: rec.Answer,
		Status:     status,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if persistErr != nil {
		// Last-writer-wins rollback, no merge with a third state.
		_, _ = c.registry.Apply(rec.QuestionID, func(s domain.Submission) domain.Submission {
			s.Status = domain.StatusNotAttempted
			return s
		})
		c.marks[rec.QuestionID] = MarkReverted
		return fmt.Errorf("persist mark: %w", persistErr)
	}
	c.marks[rec.QuestionID] = MarkConfirmed
	return nil
}

// MarkStateOf reports the optimistic-update phase for a question.
func (c *Controller) MarkStateOf(questionID string) MarkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marks[questionID]
}

// Execute runs the current question through the execution gate. The record/UI
// region is flagged loading while the judge call is in flight; a second call
// for the same question before the first resolves is rejected.
func (c *Controller) Execute(ctx context.Context) (domain.Submission, error) {
	c.mu.Lock()
	if err := c.ensureReadyLocked(); err != nil {
		c.mu.Unlock()
		return domain.Submission{}, err
	}
	rec, err := c.registry.ByOrdinal(c.current)
	if err != nil {
		c.mu.Unlock()
		return domain.Submission{}, err
	}
	if st, ok := c.exec[rec.QuestionID]; ok && st.Loading {
		c.mu.Unlock()
		return rec, domain.ErrExecutionInFlight
	}
	c.exec[rec.QuestionID] = &ExecStatus{Loading: true}
	c.mu.Unlock()

	updated, execErr := c.gate.Execute(ctx, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if execErr != nil {
		// No record mutation; attempts are not charged on failure.
		c.exec[rec.QuestionID] = &ExecStatus{Err: execErr.Error()}
		return rec, execErr
	}
	applied, err := c.registry.Apply(rec.QuestionID, func(s domain.Submission) domain.Submission {
		// Only the verdict-derived fields change. An edit made while the
		// judge call was in flight keeps its answer text.
		s.Attempts = updated.Attempts
		s.IsCorrect = updated.IsCorrect
		s.IsLocked = updated.IsLocked
		s.LastResult = updated.LastResult
		if updated.Status == domain.StatusSubmitted {
			s.Status = updated.Status
		}
		return s
	})
	if err != nil {
		c.exec[rec.QuestionID] = &ExecStatus{Err: err.Error()}
		return rec, err
	}
	c.exec[rec.QuestionID] = &ExecStatus{Message: verdictMessage(applied, c.gate.maxAttempts)}
	return applied, nil
}

// ExecStatusOf returns the ephemeral execution feedback for a question.
func (c *Controller) ExecStatusOf(questionID string) ExecStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.exec[questionID]; ok {
		return *st
	}
	return ExecStatus{}
}

// AutoSubmit is the countdown's zero callback: a terminal, client-only
// accounting step. It computes the aggregate counts locally and does not
// contact the submission collaborator.
func (c *Controller) AutoSubmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitted || c.registry == nil {
		return
	}
	// StateSubmitting included: the zero mark terminates the session even
	// with a manual submit in flight. Its continuation checks the state
	// before touching the result.
	saved, flagged, unattempted := c.registry.Counts()
	c.result = &domain.ResultSummary{
		Source:      domain.SummaryClient,
		Message:     "Time is up. Challenge auto-submitted.",
		Saved:       saved,
		Flagged:     flagged,
		Unattempted: unattempted,
	}
	c.state = StateSubmitted
}

// Submit is the manual path. It requires explicit confirmation and is gated
// on having reached the last question. Empty answers are omitted from the
// payload. On failure the session stays on the challenge view; on success the
// collaborator's counts are authoritative.
func (c *Controller) Submit(ctx context.Context, confirmed bool) (domain.ResultSummary, error) {
	if !confirmed {
		return domain.ResultSummary{}, domain.ErrNotConfirmed
	}

	c.mu.Lock()
	if err := c.ensureReadyLocked(); err != nil {
		c.mu.Unlock()
		return domain.ResultSummary{}, err
	}
	if c.current != c.registry.Len()-1 {
		c.mu.Unlock()
		return domain.ResultSummary{}, domain.ErrNotLastQuestion
	}
	var entries []domain.SubmissionEntry
	for _, rec := range c.registry.Snapshot() {
		if rec.Answer == "" {
			continue
		}
		entries = append(entries, domain.SubmissionEntry{
			QuestionID: rec.QuestionID,
			CodeAnswer: rec.Answer,
			Status:     rec.Status,
		})
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	summary, err := c.submissions.SubmitAll(ctx, entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSubmitting {
		// The countdown fired while the call was in flight. The auto-submit
		// outcome is terminal and the manual result is dropped.
		return domain.ResultSummary{}, domain.ErrSessionOver
	}
	if err != nil {
		c.state = StateReady
		return domain.ResultSummary{}, fmt.Errorf("submit challenge: %w", err)
	}
	summary.Source = domain.SummaryServer
	c.result = &summary
	c.state = StateSubmitted
	return summary, nil
}

func (c *Controller) ensureReadyLocked() error {
	switch c.state {
	case StateReady:
		return nil
	case StateSubmitted, StateSubmitting:
		return domain.ErrSessionOver
	default:
		return domain.ErrNoActiveSession
	}
}
