package domain

import "strings"

// Status is the participant-set triage tag on a question. It is independent
// of correctness and locking.
type Status string

const (
	StatusNotAttempted Status = "not_attempted"
	StatusSaved        Status = "saved"
	StatusFlagged      Status = "flagged"
	StatusSubmitted    Status = "submitted"
)

// Valid reports whether s is one of the known status tags.
func (s Status) Valid() bool {
	switch s {
	case StatusNotAttempted, StatusSaved, StatusFlagged, StatusSubmitted:
		return true
	}
	return false
}

// LastResult is the outcome of the most recent judged execution.
type LastResult string

const (
	ResultNone      LastResult = "none"
	ResultCorrect   LastResult = "correct"
	ResultIncorrect LastResult = "incorrect"
)

// Tier is the difficulty bucket that determines presentation order.
type Tier int

const (
	TierEasy Tier = iota
	TierMedium
	TierHard
	TierUnknown
)

// TierOf derives the tier from the leading letter of a question code
// (E01, M04, H02). Unknown prefixes sort after hard.
func TierOf(code string) Tier {
	if code == "" {
		return TierUnknown
	}
	switch strings.ToUpper(code[:1]) {
	case "E":
		return TierEasy
	case "M":
		return TierMedium
	case "H":
		return TierHard
	}
	return TierUnknown
}

// Question is a challenge question as served by the question source.
type Question struct {
	ID           string `json:"id"`
	Code         string `json:"question_id"` // tier-prefixed code, e.g. E01
	Title        string `json:"title"`
	Description  string `json:"description"`
	SampleInput  string `json:"sample_input"`
	SampleOutput string `json:"sample_output"`
	Difficulty   string `json:"difficulty"`
	Points       int    `json:"points"`
}

// Submission is the per-question progress record owned by a session.
type Submission struct {
	QuestionID string     `json:"questionId"`
	Code       string     `json:"questionCode"`
	Ordinal    int        `json:"ordinal"`
	Answer     string     `json:"answer"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	IsCorrect  bool       `json:"isCorrect"`
	IsLocked   bool       `json:"isLocked"`
	LastResult LastResult `json:"lastResult"`
}

// Verdict is the judge's determination for one execution attempt. The judge
// is authoritative for attempt counting; clients apply it verbatim.
type Verdict struct {
	QuestionID string `json:"question_id"`
	Result     int    `json:"result"` // 1 correct, 0 wrong
	Attempts   int    `json:"attempts"`
	IsCorrect  bool   `json:"is_correct"`
	IsLocked   bool   `json:"is_locked"`
}

// ServerSubmission is the server-held submission state returned by a status
// fetch, merged into local records during reconciliation.
type ServerSubmission struct {
	QuestionID string     `json:"question_id"`
	Status     Status     `json:"status"`
	CodeAnswer string     `json:"code_answer"`
	IsCorrect  bool       `json:"is_correct"`
	IsLocked   bool       `json:"is_locked"`
	Attempts   int        `json:"attempts"`
	LastResult LastResult `json:"last_result"`
}

// SessionStatus is the session collaborator's view of an active session.
type SessionStatus struct {
	SessionID        string             `json:"session_id"`
	RemainingSeconds int                `json:"time_remaining_seconds"`
	Submissions      []ServerSubmission `json:"submissions"`
}

// SubmissionUpdate is the payload for persisting one question's answer/status.
type SubmissionUpdate struct {
	CodeAnswer string `json:"code_answer"`
	Status     Status `json:"status"`
}

// SubmissionEntry is one line of the final submit-all payload.
type SubmissionEntry struct {
	QuestionID string `json:"question_id"`
	CodeAnswer string `json:"code_answer"`
	Status     Status `json:"status"`
}

// SummarySource says who computed a result summary.
type SummarySource string

const (
	SummaryClient SummarySource = "client" // timer-triggered, no network
	SummaryServer SummarySource = "server" // submission collaborator's response
)

// ResultSummary is the terminal result-view payload: the three semantic
// counts, plus where they came from.
type ResultSummary struct {
	Source      SummarySource `json:"source"`
	Message     string        `json:"message,omitempty"`
	Saved       int           `json:"saved"`
	Flagged     int           `json:"flagged"`
	Unattempted int           `json:"unattempted"`
}
