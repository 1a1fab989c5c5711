package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/app"
	"quiz-lobby-service/internal/auth"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/infra/memory"
	"quiz-lobby-service/internal/timer"
)

type frame struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *app.LobbyService) {
	t.Helper()
	cfg := app.DefaultGameConfig()
	cfg.Countdown = 20 * time.Millisecond
	cfg.ResultsPause = 20 * time.Millisecond

	timers := timer.NewService(clockwork.NewRealClock(), zerolog.Nop())
	registry := app.NewRegistry(cfg, timers, memory.NewLobbyDirectory(), zerolog.Nop())
	questions := memory.NewQuestionRepository(memory.NewStaticLoader(map[string]domain.QuestionSet{
		"single": {ID: "single", Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, CorrectChoiceIndex: 1, TimeLimitSeconds: 10},
		}},
	}), time.Minute)
	service := app.NewLobbyService(registry, questions)

	mux := http.NewServeMux()
	Routes(mux, NewWSHandler(service, auth.DevVerifier{}, zerolog.Nop()), NewLobbyHandler(service, zerolog.Nop()))
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
		timers.Stop()
	})
	return server, service
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", token, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readNext returns the next frame of type expect, skipping other frames.
func readNext(conn *websocket.Conn, t *testing.T, expect string) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg
		}
	}
}

func decodePayload[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Type, err)
	}
	return v
}

func TestWebSocketGameFlow(t *testing.T) {
	server, _ := newTestServer(t)

	alice := dial(t, server, "alice")
	send(t, alice, "lobby.create", map[string]any{
		"displayName": "Alice",
		"settings":    map[string]any{"maxPlayers": 4, "questionSetId": "single"},
	})
	created := decodePayload[domain.LobbyCreated](t, readNext(alice, t, "lobby.created"))
	if len(created.Code) != 6 {
		t.Fatalf("expected six character code, got %q", created.Code)
	}
	snap := decodePayload[domain.LobbySnapshot](t, readNext(alice, t, "lobby.snapshot"))
	if snap.HostID != "alice" || len(snap.Players) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	bob := dial(t, server, "bob")
	send(t, bob, "lobby.join", map[string]any{"code": strings.ToLower(created.Code), "displayName": "Bob"})
	joined := decodePayload[domain.LobbySnapshot](t, readNext(bob, t, "lobby.snapshot"))
	if len(joined.Players) != 2 {
		t.Fatalf("expected two players in joiner snapshot, got %d", len(joined.Players))
	}
	readNext(alice, t, "player.joined")

	send(t, bob, "player.ready", map[string]any{"isReady": true})
	readNext(alice, t, "player.updated")

	send(t, alice, "lobby.start", nil)
	readNext(bob, t, "session.starting")
	started := decodePayload[domain.QuestionStarted](t, readNext(alice, t, "question.started"))
	if started.Question.ID != "q1" || len(started.Question.Choices) != 3 {
		t.Fatalf("unexpected question %+v", started)
	}
	if strings.Contains(string(readNext(bob, t, "question.started").Payload), "correct") {
		t.Fatalf("question frame must not reveal the answer")
	}

	send(t, alice, "answer.submit", map[string]any{"choiceIndex": 1})
	ack := readNext(alice, t, "answer.received")
	if ack.Seq != 0 {
		t.Fatalf("expected private ack without sequence, got %d", ack.Seq)
	}
	progress := decodePayload[domain.ProgressUpdate](t, readNext(bob, t, "progress.update"))
	if progress.Answered != 1 || progress.Expected != 2 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	send(t, bob, "answer.submit", map[string]any{"choiceIndex": 0, "questionIndex": 0})
	ended := decodePayload[domain.QuestionEnded](t, readNext(bob, t, "question.ended"))
	if ended.CorrectChoiceIndex != 1 {
		t.Fatalf("expected correct index 1, got %d", ended.CorrectChoiceIndex)
	}

	finished := decodePayload[domain.SessionFinished](t, readNext(alice, t, "session.finished"))
	if len(finished.Standings) != 2 || finished.Standings[0].PlayerID != "alice" || finished.Standings[0].Rank != 1 {
		t.Fatalf("unexpected standings %+v", finished.Standings)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketErrorsArePrivate(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "carol")

	send(t, conn, "lobby.join", map[string]any{"code": "NOPE00"})
	notFound := decodePayload[domain.ErrorPayload](t, readNext(conn, t, "error"))
	if notFound.Code != "not_found" {
		t.Fatalf("expected not_found, got %+v", notFound)
	}

	send(t, conn, "lobby.dance", nil)
	if bad := decodePayload[domain.ErrorPayload](t, readNext(conn, t, "error")); bad.Code != "bad_request" {
		t.Fatalf("expected bad_request, got %+v", bad)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if bad := decodePayload[domain.ErrorPayload](t, readNext(conn, t, "error")); bad.Code != "bad_request" {
		t.Fatalf("expected bad_request for malformed frame, got %+v", bad)
	}
}

func TestAnswerWithoutChoiceIsRejected(t *testing.T) {
	server, _ := newTestServer(t)

	alice := dial(t, server, "alice")
	send(t, alice, "lobby.create", map[string]any{"settings": map[string]any{"questionSetId": "single"}})
	code := decodePayload[domain.LobbyCreated](t, readNext(alice, t, "lobby.created")).Code

	bob := dial(t, server, "bob")
	send(t, bob, "lobby.join", map[string]any{"code": code})
	readNext(alice, t, "player.joined")
	send(t, bob, "player.ready", map[string]any{"isReady": true})
	readNext(alice, t, "player.updated")
	send(t, alice, "lobby.start", nil)
	readNext(alice, t, "question.started")

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"answer.submit"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if bad := decodePayload[domain.ErrorPayload](t, readNext(alice, t, "error")); bad.Code != "bad_request" {
		t.Fatalf("expected bad_request without payload, got %+v", bad)
	}
	send(t, alice, "answer.submit", map[string]any{})
	if bad := decodePayload[domain.ErrorPayload](t, readNext(alice, t, "error")); bad.Code != "bad_request" {
		t.Fatalf("expected bad_request without choiceIndex, got %+v", bad)
	}

	// Nothing was recorded, so a real answer is still accepted.
	send(t, alice, "answer.submit", map[string]any{"choiceIndex": 1})
	progress := decodePayload[domain.ProgressUpdate](t, readNext(bob, t, "progress.update"))
	if progress.Answered != 1 {
		t.Fatalf("expected one recorded answer, got %+v", progress)
	}
	readNext(alice, t, "answer.received")
}

func TestDroppedConnectionStartsGrace(t *testing.T) {
	server, service := newTestServer(t)

	alice := dial(t, server, "alice")
	send(t, alice, "lobby.create", map[string]any{"settings": map[string]any{"questionSetId": "single"}})
	code := decodePayload[domain.LobbyCreated](t, readNext(alice, t, "lobby.created")).Code

	bob := dial(t, server, "bob")
	send(t, bob, "lobby.join", map[string]any{"code": code})
	readNext(bob, t, "lobby.snapshot")
	readNext(alice, t, "player.joined")

	alice.Close()
	changed := decodePayload[domain.HostChanged](t, readNext(bob, t, "host.changed"))
	if changed.HostID != "bob" {
		t.Fatalf("expected host to migrate to bob, got %s", changed.HostID)
	}

	snap, err := service.Snapshot(context.Background(), code)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, p := range snap.Players {
		if p.ID == "alice" && p.ConnectionState != domain.GracePeriod {
			t.Fatalf("expected alice in grace period, got %s", p.ConnectionState)
		}
	}
}

func TestLobbySnapshotEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	snap, err := service.Create(context.Background(), "host", domain.Profile{DisplayName: "Host"}, domain.Settings{QuestionSetID: "single"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := http.Get(server.URL + "/lobbies/" + strings.ToLower(snap.Code))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got domain.LobbySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code != snap.Code || got.HostID != "host" {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	missing, err := http.Get(server.URL + "/lobbies/ZZZZZZ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}

	health, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", health.StatusCode)
	}
}
