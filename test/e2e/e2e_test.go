//go:build e2e
// +build e2e

package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	testDuration   = 120

	restCandidate = 90001
	wsCandidate   = 90002
	proctorID     = 91001
)

var (
	baseURL string
	dbURL   string
	testID  uuid.UUID
	auth    *service.AuthService
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// The server must run with the same JWT_SECRET.
	cfg := config.Load()
	dbURL = cfg.DatabaseURL
	auth = service.NewAuthService(cfg)

	if err := seedTest(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func seedTest() error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Cleanup previous runs (answers, submissions and defocus events cascade from attempts).
	for _, stmt := range []string{
		`DELETE FROM attempts WHERE test_id IN (SELECT id FROM tests WHERE title = 'E2E Test')`,
		`DELETE FROM tests WHERE title = 'E2E Test'`,
	} {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}

	testID = uuid.New()
	if _, err := conn.Exec(ctx,
		`INSERT INTO tests (id, title, duration_seconds, published) VALUES ($1, 'E2E Test', $2, TRUE)`,
		testID, testDuration,
	); err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	for i, qid := range []string{"q1", "q2", "q3"} {
		if _, err := conn.Exec(ctx,
			`INSERT INTO test_questions (test_id, question_id, position) VALUES ($1, $2, $3)`,
			testID, qid, i+1,
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func TestE2ESessionFlow(t *testing.T) {
	token := issue(t, service.TokenTypeCandidate, restCandidate)
	base := fmt.Sprintf("/api/v1/candidate/tests/%s/session", testID)

	t.Run("StateBeforeStart", func(t *testing.T) {
		resp := do(t, http.MethodGet, base, nil, token)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	var attemptID string
	t.Run("Start", func(t *testing.T) {
		resp := do(t, http.MethodPost, base+"/start", nil, token)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body struct {
			Data struct {
				Status           string `json:"status"`
				AttemptID        string `json:"attempt_id"`
				RemainingSeconds int    `json:"remaining_seconds"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Status != string(model.AttemptStatusActive) || body.Data.AttemptID == "" {
			t.Fatalf("unexpected state: %+v", body.Data)
		}
		attemptID = body.Data.AttemptID
	})

	t.Run("Answer", func(t *testing.T) {
		resp := do(t, http.MethodPut, base+"/answers/q1", model.SetAnswerRequest{Value: "A"}, token)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		resp2 := do(t, http.MethodPut, base+"/answers/nope", model.SetAnswerRequest{Value: "A"}, token)
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("unknown question: status %d", resp2.StatusCode)
		}
	})

	t.Run("Defocus", func(t *testing.T) {
		resp := do(t, http.MethodPost, base+"/defocus", model.DefocusRequest{Kind: "tab_hidden"}, token)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("Submit", func(t *testing.T) {
		resp := do(t, http.MethodPost, base+"/submit", nil, token)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body struct {
			Data struct {
				Status   string `json:"status"`
				ResultID string `json:"result_id"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Status != string(model.AttemptStatusSubmitted) || body.Data.ResultID == "" {
			t.Fatalf("unexpected state: %+v", body.Data)
		}
	})

	t.Run("Persisted", func(t *testing.T) {
		ctx := context.Background()
		conn, err := pgx.Connect(ctx, dbURL)
		if err != nil {
			t.Fatalf("db connect: %v", err)
		}
		defer conn.Close(ctx)

		// Finalization and defocus persistence are asynchronous.
		deadline := time.Now().Add(15 * time.Second)
		for {
			var status string
			var defocus int
			err := conn.QueryRow(ctx,
				`SELECT a.status, (SELECT COUNT(*) FROM attempt_defocus_events d WHERE d.attempt_id = a.id)
				 FROM attempts a WHERE a.id = $1`, attemptID,
			).Scan(&status, &defocus)
			if err != nil {
				t.Fatalf("query attempt: %v", err)
			}
			if status == string(model.AttemptStatusSubmitted) && defocus == 1 {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("attempt not finalized: status=%s defocus=%d", status, defocus)
			}
			time.Sleep(250 * time.Millisecond)
		}
	})

	t.Run("RestartRejected", func(t *testing.T) {
		resp := do(t, http.MethodPost, base+"/start", nil, issue(t, service.TokenTypeCandidate, restCandidate))
		defer resp.Body.Close()
		// The finished session is still hosted, so start is answered idempotently.
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})
}

func TestE2EWebSocketFlow(t *testing.T) {
	token := issue(t, service.TokenTypeCandidate, wsCandidate)

	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = fmt.Sprintf("/ws/v1/candidate/tests/%s/session", testID)
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial: %v (status %d)", err, resp.StatusCode)
		}
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(v interface{}) {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor := func(event string) map[string]interface{} {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("waiting for %s: %v", event, err)
			}
			if msg["event"] == event {
				return msg
			}
		}
	}

	send(map[string]string{"action": "start"})
	waitFor("state")

	send(map[string]string{"action": "answer", "q_id": "q2", "ans": "C"})
	waitFor("success")

	send(map[string]string{"action": "defocus", "kind": "window_blur"})
	if msg := waitFor("warning"); msg["level"] != float64(1) {
		t.Fatalf("unexpected warning: %v", msg)
	}

	send(map[string]string{"action": "submit"})
	if msg := waitFor("terminated"); msg["status"] != string(model.AttemptStatusSubmitted) {
		t.Fatalf("unexpected outcome: %v", msg)
	}
}

func TestE2EMonitorSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proctor, err := auth.GenerateToken(service.TokenTypeProctor, proctorID, []string{service.PermissionMonitorRead})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/proctor/tests/%s/monitor", baseURL, testID), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+proctor)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "snapshot") {
			return
		}
	}
	t.Fatalf("no snapshot received: %v", scanner.Err())
}

// Helpers

func issue(t *testing.T, typ service.TokenType, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(typ, userID, nil)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
