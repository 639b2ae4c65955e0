package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"brocode-session-service/internal/app"
	"brocode-session-service/internal/domain"
	"brocode-session-service/internal/infra/memory"
)

type stubSessionAPI struct{}

func (stubSessionAPI) Start(context.Context) (domain.SessionStatus, error) {
	return domain.SessionStatus{}, nil
}

func (stubSessionAPI) Status(context.Context) (domain.SessionStatus, error) {
	return domain.SessionStatus{}, nil
}

type stubSubmissionAPI struct{}

func (stubSubmissionAPI) Update(context.Context, string, domain.SubmissionUpdate) error {
	return nil
}

func (stubSubmissionAPI) SubmitAll(_ context.Context, entries []domain.SubmissionEntry) (domain.ResultSummary, error) {
	return domain.ResultSummary{Saved: len(entries)}, nil
}

type stubJudge struct{}

func (stubJudge) Execute(_ context.Context, questionID, _ string) (domain.Verdict, error) {
	return domain.Verdict{QuestionID: questionID, Result: 1, Attempts: 1, IsCorrect: true, IsLocked: true}, nil
}

func testFactory() ControllerFactory {
	questions := memory.NewQuestionSource(memory.NewStaticQuestionLoader([]domain.Question{
		{ID: "1", Code: "E01", Title: "Sum"},
		{ID: "2", Code: "M01", Title: "Palindrome"},
	}), time.Minute)
	return func(sessionKey string) *app.Controller {
		return app.NewController(stubSessionAPI{}, questions, stubSubmissionAPI{}, stubJudge{}, memory.NewKVStore(), app.Config{
			Duration:   time.Hour,
			SessionKey: sessionKey,
		})
	}
}

func TestWebSocketChallengeFlow(t *testing.T) {
	handler := NewSessionHandler(testFactory())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?session=team-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial session snapshot.
	_, payload := readNext(conn, t, "session")
	if payload["state"] != string(app.StateReady) {
		t.Fatalf("expected ready session, got %v", payload["state"])
	}

	// Edit the first question, then execute it.
	writeMsg(conn, t, "edit", map[string]any{"text": "print(4)"})
	writeMsg(conn, t, "execute", map[string]any{})

	execSeen := false
	for i := 0; i < 4; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "execResult" {
			execSeen = true
			question, _ := payload["question"].(map[string]any)
			if question["isCorrect"] != true {
				t.Fatalf("expected correct verdict, got %v", question)
			}
			break
		}
	}
	if !execSeen {
		t.Fatalf("expected execResult message")
	}

	// Navigate to the last question and submit.
	writeMsg(conn, t, "navigate", map[string]any{"ordinal": 1})
	readNext(conn, t, "session")
	writeMsg(conn, t, "submit", map[string]any{"confirm": true})

	resultSeen := false
	for i := 0; i < 4; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "result" {
			resultSeen = true
			if payload["source"] != string(domain.SummaryServer) {
				t.Fatalf("expected server summary, got %v", payload["source"])
			}
			break
		}
	}
	if !resultSeen {
		t.Fatalf("expected result message")
	}
}

func TestWebSocketExecuteAfterSubmitPushesErrorOnly(t *testing.T) {
	handler := NewSessionHandler(testFactory())
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "?session=team-2"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "session")
	writeMsg(conn, t, "navigate", map[string]any{"ordinal": 1})
	readNext(conn, t, "session")
	writeMsg(conn, t, "submit", map[string]any{"confirm": true})
	for i := 0; i < 4; i++ {
		if typ, _ := readNext(conn, t, ""); typ == "result" {
			break
		}
	}

	// The session is over: execute resolves no record, so only an error
	// envelope and a fresh snapshot come back.
	writeMsg(conn, t, "execute", map[string]any{})
	sawError := false
	for i := 0; i < 6; i++ {
		typ, _ := readNext(conn, t, "")
		if typ == "execResult" {
			t.Fatalf("execResult pushed without a resolved question")
		}
		if typ == "error" {
			sawError = true
		}
		if typ == "session" && sawError {
			break
		}
	}
	if !sawError {
		t.Fatalf("expected error envelope after post-submit execute")
	}
}

func TestWebSocketRequiresSessionKey(t *testing.T) {
	handler := NewSessionHandler(testFactory())
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func writeMsg(conn *websocket.Conn, t *testing.T, typ string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
