package domain

import "errors"

var (
	// ErrSessionActive is reported by the session collaborator when the
	// participant already has a running session; callers recover by fetching
	// the existing session's status instead.
	ErrSessionActive = errors.New("challenge session already active")
	// ErrNoActiveSession indicates a status fetch found no running session.
	ErrNoActiveSession = errors.New("no active challenge session")
	// ErrNoQuestions indicates the question source returned an empty list,
	// which is fatal for session start.
	ErrNoQuestions = errors.New("question source returned no questions")
	// ErrQuestionNotFound indicates an unknown question identifier.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOrdinalOutOfRange indicates navigation past the first or last question.
	ErrOrdinalOutOfRange = errors.New("question ordinal out of range")
	// ErrQuestionLocked indicates an edit or execute on a locked question.
	ErrQuestionLocked = errors.New("question is locked")
	// ErrEmptyAnswer indicates an execute with a blank answer.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrExecutionInFlight indicates an execute while a previous one for the
	// same question has not resolved.
	ErrExecutionInFlight = errors.New("execution already in flight")
	// ErrNotLastQuestion indicates a manual submit before reaching the last
	// question.
	ErrNotLastQuestion = errors.New("submit requires reaching the last question")
	// ErrNotConfirmed indicates a manual submit without explicit confirmation.
	ErrNotConfirmed = errors.New("submit not confirmed")
	// ErrSessionOver indicates an action after the session reached a terminal
	// state.
	ErrSessionOver = errors.New("challenge session is over")
	// ErrInvalidStatus indicates an unknown status tag in a mark request.
	ErrInvalidStatus = errors.New("invalid submission status")
)
