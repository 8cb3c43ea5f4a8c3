package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"github.com/gorilla/websocket"
)

type testEnv struct {
	server   *httptest.Server
	registry *app.Registry
	sessions *memory.SessionStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	conns := app.NewConnections(logger)
	registry := app.NewRegistry(quizRepo, sessions, app.RegistryOptions{Logger: logger, OnEvict: conns.CloseRoom})

	router := NewRouter(
		NewWSHandler(registry, conns, logger),
		NewRoomsHandler(registry, sessions, "http://quiz.test", logger),
		NewQuizzesHandler(sessions, quizRepo, logger),
	)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		conns.Close()
		server.Close()
	})
	return &testEnv{server: server, registry: registry, sessions: sessions}
}

func (e *testEnv) createRoom(t *testing.T, quizID string) string {
	t.Helper()
	body := strings.NewReader(`{"quizId":"` + quizID + `","hostId":"host"}`)
	resp, err := http.Post(e.server.URL+"/rooms", "application/json", body)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.JoinURL != "http://quiz.test/join/"+created.RoomCode {
		t.Fatalf("unexpected join url %q", created.JoinURL)
	}
	return created.RoomCode
}

func (e *testEnv) dial(t *testing.T, code string, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + e.server.URL[len("http"):] + "/ws/" + code + "?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func user(id, name string) url.Values {
	return url.Values{"userId": {id}, "name": {name}}
}

type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil skips events until want arrives and decodes its data into out.
func readUntil(t *testing.T, conn *websocket.Conn, want string, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Event != want {
			continue
		}
		if out != nil && len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, out); err != nil {
				t.Fatalf("decode %s: %v", want, err)
			}
		}
		return
	}
}

func TestWebSocketGameFlow(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")

	host := env.dial(t, code, user("host", "Hosty"))
	var hello connectedPayload
	readUntil(t, host, "connected", &hello)
	if !hello.IsHost || hello.State != domain.StateLobby || hello.TotalQuestions != 2 {
		t.Fatalf("unexpected host connected payload %+v", hello)
	}

	alice := env.dial(t, code, user("u1", "Alice"))
	readUntil(t, alice, "connected", &hello)
	if hello.IsHost || hello.ParticipantID != "u1" {
		t.Fatalf("unexpected player connected payload %+v", hello)
	}
	send(t, alice, "join_room", nil)

	var joined playersPayload
	readUntil(t, host, "player_joined", &joined)
	if len(joined.Players) != 1 || joined.Players[0].DisplayName != "Alice" {
		t.Fatalf("unexpected roster %+v", joined.Players)
	}

	send(t, host, "start_quiz", nil)
	var hostQ, playerQ struct {
		Question map[string]any `json:"question"`
		Index    int            `json:"index"`
		Total    int            `json:"total"`
	}
	readUntil(t, host, "quiz_started", &hostQ)
	readUntil(t, alice, "quiz_started", &playerQ)
	if _, ok := hostQ.Question["correct"]; !ok {
		t.Fatalf("host should see correct indices: %+v", hostQ.Question)
	}
	if _, ok := playerQ.Question["correct"]; ok {
		t.Fatalf("player must not see correct indices: %+v", playerQ.Question)
	}
	if playerQ.Index != 0 || playerQ.Total != 2 || playerQ.Question["points"] != float64(100) {
		t.Fatalf("unexpected question payload %+v", playerQ)
	}

	send(t, alice, "submit_answer", map[string]any{"questionIndex": 0, "selections": []int{1}})
	var count answerCountPayload
	readUntil(t, host, "answer_received", &count)
	if count.Count != 1 || count.Total != 1 {
		t.Fatalf("unexpected answer count %+v", count)
	}
	readUntil(t, host, "all_answered", nil)

	// Duplicate submissions are dropped silently; the next event the host
	// sees is the one it asked for.
	send(t, alice, "submit_answer", map[string]any{"questionIndex": 0, "selections": []int{0}})
	send(t, host, "show_results", nil)
	var results resultsPayload
	readUntil(t, host, "question_results", &results)
	if results.Scores["u1"] != 100 || results.AnswersByPlayer["u1"][0] != 1 {
		t.Fatalf("unexpected results %+v", results)
	}

	send(t, host, "next_question", nil)
	var next struct {
		Index int `json:"index"`
	}
	readUntil(t, alice, "next_question", &next)
	if next.Index != 1 {
		t.Fatalf("expected question 1, got %d", next.Index)
	}

	send(t, host, "next_question", nil)
	var ended endedPayload
	readUntil(t, alice, "quiz_ended", &ended)
	if ended.Session == nil || ended.Session.SessionID == "" {
		t.Fatalf("expected session reference, got %+v", ended)
	}
	if len(ended.Leaderboard) != 1 || ended.Leaderboard[0].Score != 100 || len(ended.QuestionsReview) != 2 {
		t.Fatalf("unexpected quiz_ended payload %+v", ended)
	}

	rec, err := env.sessions.GetSession(context.Background(), ended.Session.SessionID)
	if err != nil {
		t.Fatalf("session not recorded: %v", err)
	}
	if rec.RoomCode != code || rec.Participants[0].WrongAnswers != 1 {
		t.Fatalf("unexpected session %+v", rec)
	}
}

func TestWebSocketRejectsNonHostControl(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")

	alice := env.dial(t, code, user("u1", "Alice"))
	readUntil(t, alice, "connected", nil)
	send(t, alice, "start_quiz", nil)

	var failure errorPayload
	readUntil(t, alice, "error", &failure)
	if failure.Message != domain.ErrNotAuthorized.Error() {
		t.Fatalf("unexpected error %q", failure.Message)
	}

	send(t, alice, "bogus", nil)
	readUntil(t, alice, "error", &failure)
	if failure.Message != "unsupported event" {
		t.Fatalf("unexpected error %q", failure.Message)
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, alice, "error", &failure)
	if failure.Message != "invalid message" {
		t.Fatalf("unexpected error %q", failure.Message)
	}
}

func TestWebSocketGuestJoin(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")

	guest := env.dial(t, strings.ToLower(code), url.Values{"guestName": {"  A very very long guest name  "}})
	var hello connectedPayload
	readUntil(t, guest, "connected", &hello)
	if !strings.HasPrefix(hello.ParticipantID, "guest_") || len(hello.ParticipantID) != len("guest_")+8 {
		t.Fatalf("unexpected guest id %q", hello.ParticipantID)
	}

	send(t, guest, "join_room", nil)
	var joined playersPayload
	readUntil(t, guest, "player_joined", &joined)
	if got := joined.Players[0].DisplayName; got != "A very very long gue" {
		t.Fatalf("expected name trimmed to 20 runes, got %q", got)
	}
}

func TestWebSocketDisconnectLeavesRoom(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")

	host := env.dial(t, code, user("host", "Hosty"))
	readUntil(t, host, "connected", nil)
	bob := env.dial(t, code, user("u2", "Bob"))
	readUntil(t, bob, "connected", nil)
	send(t, bob, "join_room", nil)
	readUntil(t, host, "player_joined", nil)

	bob.Close()
	var left playersPayload
	readUntil(t, host, "player_left", &left)
	if len(left.Players) != 0 {
		t.Fatalf("expected empty roster, got %+v", left.Players)
	}
}

func TestWebSocketReconnectKeepsPlayer(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")

	first := env.dial(t, code, user("u1", "Alice"))
	readUntil(t, first, "connected", nil)
	send(t, first, "join_room", nil)
	readUntil(t, first, "player_joined", nil)

	second := env.dial(t, code, user("u1", "Alice"))
	readUntil(t, second, "connected", nil)

	// The replaced socket is closed by the server.
	_ = first.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)

	players, err := env.registry.Players(code)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 1 || players[0].ID != "u1" {
		t.Fatalf("reconnect must not drop the player, got %+v", players)
	}
}

func TestWebSocketRejectsBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "quiz-1")
	base := "ws" + env.server.URL[len("http"):] + "/ws/"

	_, resp, err := websocket.DefaultDialer.Dial(base+"NOPE00?userId=u1&name=Alice", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got err=%v resp=%v", err, resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(base+code, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity, got err=%v resp=%v", err, resp)
	}
}

func TestRoomsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/rooms", "application/json", strings.NewReader(`{"quizId":"nope","hostId":"host"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz, got %d", resp.StatusCode)
	}

	resp, err = http.Post(env.server.URL+"/rooms", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", resp.StatusCode)
	}

	code := env.createRoom(t, "quiz-1")

	resp, err = http.Get(env.server.URL + "/rooms/" + code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	var info domain.RoomInfo
	_ = json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if info.Code != code || info.State != domain.StateLobby || info.QuizName != "Arithmetic" {
		t.Fatalf("unexpected room info %+v", info)
	}

	resp, err = http.Get(env.server.URL + "/rooms/" + code + "/qr")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected png, got %q", resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(env.server.URL + "/rooms/NOPE00/qr")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/sessions/missing")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:   "quiz-1",
			Name: "Arithmetic",
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: []int{1}},
				{Text: "What is 3 - 3?", Options: []string{"0", "1"}, Correct: []int{0}},
			},
		},
		"fun": {
			ID:            "fun",
			Name:          "Party",
			RevealAnswers: true,
			Questions: []domain.Question{
				{Text: "Pick blue", Options: []string{"red", "blue"}, Correct: []int{1}},
			},
		},
	}
}

func TestWebSocketRevealAnswersSendsCorrectToPlayers(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "fun")

	host := env.dial(t, code, user("host", "Hosty"))
	readUntil(t, host, "connected", nil)
	alice := env.dial(t, code, user("u1", "Alice"))
	readUntil(t, alice, "connected", nil)
	send(t, alice, "join_room", nil)
	readUntil(t, host, "player_joined", nil)

	send(t, host, "start_quiz", nil)
	var started struct {
		Question      questionView `json:"question"`
		RevealAnswers bool         `json:"revealAnswers"`
	}
	readUntil(t, alice, "quiz_started", &started)
	if !started.RevealAnswers {
		t.Fatalf("expected revealAnswers in payload")
	}
	if len(started.Question.Correct) != 1 || started.Question.Correct[0] != 1 {
		t.Fatalf("player should see correct indices, got %v", started.Question.Correct)
	}
}

func TestQuizEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.sessions.RecordSession(ctx, domain.SessionRecord{RoomCode: "AAAAAA", QuizID: "quiz-1", EndedAt: time.Now()})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/quizzes/quiz-1/sessions")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var listed quizSessionsResponse
	err = json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions: status %d err %v", resp.StatusCode, err)
	}
	if listed.QuizID != "quiz-1" || len(listed.SessionIDs) != 1 || listed.SessionIDs[0] != id {
		t.Fatalf("unexpected listing %+v", listed)
	}

	resp, err = http.Get(env.server.URL + "/quizzes/other/sessions")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(raw, []byte(`"sessionIds":[]`)) {
		t.Fatalf("expected empty list, got %s", raw)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/quizzes/quiz-1/cache", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}
