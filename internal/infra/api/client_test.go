package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brocode-session-service/internal/domain"
)

func TestStartMapsActiveSessionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/challenge/start" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"detail": "Team already has an active challenge session",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", time.Second)
	_, err := client.Start(context.Background())
	if !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStatusDecodesSubmissions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session":                map[string]any{"id": 7},
			"time_remaining_seconds": 42,
			"submissions": []map[string]any{
				{
					"question_id": 3,
					"status":      "saved",
					"code_answer": "print(4)",
					"is_correct":  false,
					"is_locked":   false,
					"attempts":    2,
					"last_result": "incorrect",
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", time.Second)
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.SessionID != "7" || status.RemainingSeconds != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Submissions) != 1 {
		t.Fatalf("expected one submission, got %d", len(status.Submissions))
	}
	sub := status.Submissions[0]
	if sub.QuestionID != "3" || sub.Status != domain.StatusSaved || sub.Attempts != 2 || sub.LastResult != domain.ResultIncorrect {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestExecuteDecodesVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/challenge/execute/3" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			CodeAnswer string `json:"code_answer"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.CodeAnswer != "print(4)" {
			t.Fatalf("expected answer in request, got %q", req.CodeAnswer)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"question_id": 3,
			"result":      1,
			"attempts":    2,
			"is_correct":  true,
			"is_locked":   true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	verdict, err := client.Execute(context.Background(), "3", "print(4)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if verdict.Result != 1 || verdict.Attempts != 2 || !verdict.IsCorrect || !verdict.IsLocked {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestSubmitAllSendsEntriesAndDecodesCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Submissions []domain.SubmissionEntry `json:"submissions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Submissions) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(req.Submissions))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           "Challenge submitted successfully",
			"total_saved":       2,
			"total_flagged":     1,
			"total_unattempted": 3,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	summary, err := client.SubmitAll(context.Background(), []domain.SubmissionEntry{
		{QuestionID: "1", CodeAnswer: "x", Status: domain.StatusSaved},
		{QuestionID: "3", CodeAnswer: "y", Status: domain.StatusFlagged},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if summary.Saved != 2 || summary.Flagged != 1 || summary.Unattempted != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Source != domain.SummaryServer {
		t.Fatalf("expected server source, got %s", summary.Source)
	}
}

func TestServerErrorSurfacesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Judge API error"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.Execute(context.Background(), "1", "x")
	if err == nil {
		t.Fatalf("expected error")
	}
}
