package app

import (
	"context"
	"fmt"
	"strings"

	"brocode-session-service/internal/domain"
)

// Judge executes an answer against the remote judge and returns its verdict.
type Judge interface {
	Execute(ctx context.Context, questionID, codeAnswer string) (domain.Verdict, error)
}

// Gate enforces the per-question execution rules: it refuses locked and blank
// submissions before contacting the judge, and applies the judge's verdict
// verbatim. Attempt counting is server-authoritative; the gate never
// increments attempts on its own.
type Gate struct {
	judge       Judge
	maxAttempts int
}

func NewGate(judge Judge, maxAttempts int) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{judge: judge, maxAttempts: maxAttempts}
}

// Execute runs one judged attempt for rec. On a judge failure the record is
// returned unmodified; attempts are not charged locally.
func (g *Gate) Execute(ctx context.Context, rec domain.Submission) (domain.Submission, error) {
	if rec.IsLocked || rec.IsCorrect {
		return rec, domain.ErrQuestionLocked
	}
	if strings.TrimSpace(rec.Answer) == "" {
		return rec, domain.ErrEmptyAnswer
	}

	verdict, err := g.judge.Execute(ctx, rec.QuestionID, rec.Answer)
	if err != nil {
		return rec, fmt.Errorf("judge %s: %w", rec.Code, err)
	}

	rec.Attempts = verdict.Attempts
	rec.IsCorrect = verdict.IsCorrect
	rec.IsLocked = verdict.IsLocked
	if verdict.Result == 1 {
		rec.LastResult = domain.ResultCorrect
	} else {
		rec.LastResult = domain.ResultIncorrect
	}
	if rec.IsCorrect {
		rec.IsLocked = true
		rec.Status = domain.StatusSubmitted
	}
	// The attempt budget locks a question even when the judge only locks on
	// correctness.
	if rec.Attempts >= g.maxAttempts {
		rec.IsLocked = true
	}
	return rec, nil
}

// Verdict messages shown inline on the current question.
func verdictMessage(rec domain.Submission, maxAttempts int) string {
	if rec.IsCorrect {
		return "Correct answer. Question locked."
	}
	if rec.IsLocked {
		return fmt.Sprintf("Wrong answer. Attempt limit reached (%d/%d).", rec.Attempts, maxAttempts)
	}
	return fmt.Sprintf("Wrong answer. Attempt %d/%d.", rec.Attempts, maxAttempts)
}
