package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"brocode-session-service/internal/domain"
)

// Client talks to the challenge platform's REST API. It implements all four
// collaborator interfaces the session controller depends on: session
// start/status, the public question source, submission updates, and the
// judge execute endpoint.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// Start begins a new challenge session. The platform rejects a second start
// with an "already has an active challenge session" error; that condition is
// mapped to domain.ErrSessionActive so callers can recover via Status.
func (c *Client) Start(ctx context.Context) (domain.SessionStatus, error) {
	var resp struct {
		Session struct {
			ID                   json.Number `json:"id"`
			TimeRemainingSeconds int         `json:"time_remaining_seconds"`
		} `json:"session"`
	}
	err := c.call(ctx, http.MethodPost, "/challenge/start", nil, &resp)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.status == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(apiErr.detail), "active") {
			return domain.SessionStatus{}, domain.ErrSessionActive
		}
		return domain.SessionStatus{}, fmt.Errorf("start challenge: %w", err)
	}
	return domain.SessionStatus{
		SessionID:        resp.Session.ID.String(),
		RemainingSeconds: resp.Session.TimeRemainingSeconds,
	}, nil
}

// Status fetches the active session and its server-held submissions.
func (c *Client) Status(ctx context.Context) (domain.SessionStatus, error) {
	var resp struct {
		Session struct {
			ID json.Number `json:"id"`
		} `json:"session"`
		Submissions          []serverSubmission `json:"submissions"`
		TimeRemainingSeconds int                `json:"time_remaining_seconds"`
	}
	if err := c.call(ctx, http.MethodGet, "/challenge/status", nil, &resp); err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.status == http.StatusNotFound {
			return domain.SessionStatus{}, domain.ErrNoActiveSession
		}
		return domain.SessionStatus{}, fmt.Errorf("challenge status: %w", err)
	}
	subs := make([]domain.ServerSubmission, 0, len(resp.Submissions))
	for _, s := range resp.Submissions {
		subs = append(subs, s.toDomain())
	}
	return domain.SessionStatus{
		SessionID:        resp.Session.ID.String(),
		RemainingSeconds: resp.TimeRemainingSeconds,
		Submissions:      subs,
	}, nil
}

// ListQuestions fetches the public question list.
func (c *Client) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	var resp []struct {
		ID           json.Number `json:"id"`
		Code         string      `json:"question_id"`
		Title        string      `json:"title"`
		Description  string      `json:"description"`
		SampleInput  string      `json:"sample_input"`
		SampleOutput string      `json:"sample_output"`
		Difficulty   string      `json:"difficulty"`
		Points       int         `json:"points"`
	}
	if err := c.call(ctx, http.MethodGet, "/questions/public/all", nil, &resp); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(resp))
	for _, q := range resp {
		questions = append(questions, domain.Question{
			ID:           q.ID.String(),
			Code:         q.Code,
			Title:        q.Title,
			Description:  q.Description,
			SampleInput:  q.SampleInput,
			SampleOutput: q.SampleOutput,
			Difficulty:   q.Difficulty,
			Points:       q.Points,
		})
	}
	return questions, nil
}

// Update persists one question's answer and status.
func (c *Client) Update(ctx context.Context, questionID string, upd domain.SubmissionUpdate) error {
	path := "/challenge/submission/" + questionID
	if err := c.call(ctx, http.MethodPut, path, upd, nil); err != nil {
		return fmt.Errorf("update submission %s: %w", questionID, err)
	}
	return nil
}

// SubmitAll sends the final payload and ends the session server-side.
func (c *Client) SubmitAll(ctx context.Context, entries []domain.SubmissionEntry) (domain.ResultSummary, error) {
	req := struct {
		Submissions []domain.SubmissionEntry `json:"submissions"`
	}{Submissions: entries}
	var resp struct {
		Message          string `json:"message"`
		TotalSaved       int    `json:"total_saved"`
		TotalFlagged     int    `json:"total_flagged"`
		TotalUnattempted int    `json:"total_unattempted"`
	}
	if err := c.call(ctx, http.MethodPost, "/challenge/submit", req, &resp); err != nil {
		return domain.ResultSummary{}, fmt.Errorf("submit challenge: %w", err)
	}
	return domain.ResultSummary{
		Source:      domain.SummaryServer,
		Message:     resp.Message,
		Saved:       resp.TotalSaved,
		Flagged:     resp.TotalFlagged,
		Unattempted: resp.TotalUnattempted,
	}, nil
}

// Execute judges the current answer for a question. The response carries the
// server-counted attempts and lock/correct flags which are applied verbatim.
func (c *Client) Execute(ctx context.Context, questionID, codeAnswer string) (domain.Verdict, error) {
	req := struct {
		CodeAnswer string `json:"code_answer"`
	}{CodeAnswer: codeAnswer}
	var resp struct {
		QuestionID json.Number `json:"question_id"`
		Result     int         `json:"result"`
		Attempts   int         `json:"attempts"`
		IsCorrect  bool        `json:"is_correct"`
		IsLocked   bool        `json:"is_locked"`
	}
	path := "/challenge/execute/" + questionID
	if err := c.call(ctx, http.MethodPost, path, req, &resp); err != nil {
		return domain.Verdict{}, fmt.Errorf("execute %s: %w", questionID, err)
	}
	return domain.Verdict{
		QuestionID: resp.QuestionID.String(),
		Result:     resp.Result,
		Attempts:   resp.Attempts,
		IsCorrect:  resp.IsCorrect,
		IsLocked:   resp.IsLocked,
	}, nil
}

type serverSubmission struct {
	QuestionID json.Number       `json:"question_id"`
	Status     domain.Status     `json:"status"`
	CodeAnswer string            `json:"code_answer"`
	IsCorrect  bool              `json:"is_correct"`
	IsLocked   bool              `json:"is_locked"`
	Attempts   int               `json:"attempts"`
	LastResult domain.LastResult `json:"last_result"`
}

func (s serverSubmission) toDomain() domain.ServerSubmission {
	return domain.ServerSubmission{
		QuestionID: s.QuestionID.String(),
		Status:     s.Status,
		CodeAnswer: s.CodeAnswer,
		IsCorrect:  s.IsCorrect,
		IsLocked:   s.IsLocked,
		Attempts:   s.Attempts,
		LastResult: s.LastResult,
	}
}

type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("api error %d: %s", e.status, e.detail)
	}
	return fmt.Sprintf("api error %d", e.status)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return &apiError{status: resp.StatusCode, detail: detail.Detail}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
