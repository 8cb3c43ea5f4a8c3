package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxGuestName = 20

type WSHandler struct {
	registry *app.Registry
	conns    *app.Connections
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *app.Registry, conns *app.Connections, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		registry: registry,
		conns:    conns,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type answerPayload struct {
	QuestionIndex *int  `json:"questionIndex"`
	Selections    []int `json:"selections"`
}

type connectedPayload struct {
	RoomCode        string              `json:"roomCode"`
	ParticipantID   string              `json:"participantId"`
	State           domain.RoomState    `json:"state"`
	IsHost          bool                `json:"isHost"`
	Players         []domain.PlayerView `json:"players"`
	CurrentQuestion int                 `json:"currentQuestion"`
	TotalQuestions  int                 `json:"totalQuestions"`
}

type playersPayload struct {
	Players []domain.PlayerView `json:"players"`
}

// questionView omits the correct indices for recipients not allowed to see them.
type questionView struct {
	Text      string              `json:"text"`
	Type      domain.QuestionType `json:"type"`
	Options   []string            `json:"options"`
	TimeLimit int                 `json:"timeLimit"`
	Points    int                 `json:"points"`
	Correct   []int               `json:"correct,omitempty"`
}

type questionPayload struct {
	Question      questionView `json:"question"`
	Index         int          `json:"index"`
	Total         int          `json:"total"`
	RevealAnswers bool         `json:"revealAnswers"`
}

type answerCountPayload struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

type resultsPayload struct {
	Index           int              `json:"index"`
	CorrectIndices  []int            `json:"correctIndices"`
	Scores          map[string]int   `json:"scores"`
	AnswersByPlayer map[string][]int `json:"answersByPlayer"`
	HideResults     bool             `json:"hideResults"`
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

type endedPayload struct {
	Leaderboard     []domain.LeaderboardEntry `json:"leaderboard"`
	HideResults     bool                      `json:"hideResults"`
	Session         *sessionRef               `json:"session"`
	QuestionsReview []domain.Question         `json:"questionsReview"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// client is one accepted socket bound to a room and a participant.
type client struct {
	h      *WSHandler
	code   string
	id     string
	name   string
	hostID string
	ch     *wsChannel
}

// ServeWS upgrades GET /ws/{code} and runs the room protocol for the socket.
// Callers identify with userId and name, or with guestName alone.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := app.NormalizeCode(r.PathValue("code"))
	id, name, ok := identify(r)
	if !ok {
		http.Error(w, "missing userId and name, or guestName", http.StatusBadRequest)
		return
	}

	info, err := h.registry.Info(code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "room", code, "error", err)
		return
	}

	c := &client{h: h, code: code, id: id, name: name, hostID: info.HostID, ch: newWSChannel(conn, h.logger)}
	go c.ch.writePump()
	h.conns.Register(code, id, c.ch)
	defer c.disconnect()

	c.unicast("connected", connectedPayload{
		RoomCode:        code,
		ParticipantID:   id,
		State:           info.State,
		IsHost:          c.isHost(),
		Players:         info.Players,
		CurrentQuestion: info.CurrentQuestion,
		TotalQuestions:  info.TotalQuestions,
	})

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if isDecodeError(err) {
				c.unicast("error", errorPayload{Message: "invalid message"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", "room", code, "participant", id, "error", err)
			}
			return
		}
		c.dispatch(ctx, in)
	}
}

func (c *client) dispatch(ctx context.Context, in inboundMessage) {
	switch in.Event {
	case "join_room":
		c.joinRoom()
	case "start_quiz":
		c.startQuiz(ctx)
	case "submit_answer":
		c.submitAnswer(in.Data)
	case "tab_switch":
		if _, err := c.h.registry.RecordTabSwitch(c.code, c.id); err != nil {
			c.h.logger.Debug("tab switch ignored", "room", c.code, "participant", c.id, "error", err)
		}
	case "show_results":
		c.showResults()
	case "next_question":
		c.nextQuestion(ctx)
	case "end_quiz":
		c.endQuiz(ctx)
	default:
		c.unicast("error", errorPayload{Message: "unsupported event"})
	}
}

func (c *client) joinRoom() {
	if c.isHost() {
		c.fail(domain.ErrNotAuthorized)
		return
	}
	if _, err := c.h.registry.Join(c.code, c.id, c.name); err != nil {
		c.fail(err)
		return
	}
	players, err := c.h.registry.Players(c.code)
	if err != nil {
		c.fail(err)
		return
	}
	c.broadcast("player_joined", playersPayload{Players: players})
}

func (c *client) startQuiz(ctx context.Context) {
	prompt, err := c.h.registry.Start(ctx, c.code, c.id)
	if err != nil {
		c.fail(err)
		return
	}
	c.broadcastQuestion("quiz_started", prompt)
}

func (c *client) submitAnswer(raw json.RawMessage) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.QuestionIndex == nil {
		c.unicast("error", errorPayload{Message: "invalid submit_answer payload"})
		return
	}
	count, err := c.h.registry.Submit(c.code, c.id, *payload.QuestionIndex, payload.Selections)
	if app.IsRejection(err) {
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.broadcast("answer_received", answerCountPayload{Count: count.Count, Total: count.Total})
	if count.AllAnswered {
		c.broadcast("all_answered", nil)
	}
}

func (c *client) showResults() {
	res, err := c.h.registry.Results(c.code, c.id)
	if err != nil {
		c.fail(err)
		return
	}
	c.broadcast("question_results", resultsPayload{
		Index:           res.Index,
		CorrectIndices:  res.CorrectIndices,
		Scores:          res.Scores,
		AnswersByPlayer: res.Answers,
		HideResults:     res.HideResults,
	})
}

func (c *client) nextQuestion(ctx context.Context) {
	progress, err := c.h.registry.Advance(ctx, c.code, c.id)
	if err != nil {
		c.fail(err)
		return
	}
	if progress.Finished {
		c.broadcastEnded(progress.Outcome)
		return
	}
	c.broadcastQuestion("next_question", progress.Next)
}

func (c *client) endQuiz(ctx context.Context) {
	outcome, err := c.h.registry.End(ctx, c.code, c.id)
	if err != nil {
		c.fail(err)
		return
	}
	c.broadcastEnded(outcome)
}

func (c *client) broadcastQuestion(event string, prompt app.QuestionPrompt) {
	c.h.conns.BroadcastEach(c.code, func(participantID string) app.Message {
		q := prompt.Question
		view := questionView{
			Text:      q.Text,
			Type:      q.Type,
			Options:   q.Options,
			TimeLimit: q.TimeLimit,
			Points:    q.Points,
		}
		if participantID == prompt.HostID || prompt.RevealAnswers {
			view.Correct = q.Correct
		}
		return app.Message{Event: event, Data: questionPayload{
			Question:      view,
			Index:         prompt.Index,
			Total:         prompt.Total,
			RevealAnswers: prompt.RevealAnswers,
		}}
	})
}

func (c *client) broadcastEnded(outcome app.Outcome) {
	payload := endedPayload{
		Leaderboard:     outcome.Leaderboard,
		HideResults:     outcome.HideResults,
		QuestionsReview: outcome.Review,
	}
	if outcome.SessionID != "" {
		payload.Session = &sessionRef{SessionID: outcome.SessionID}
	}
	c.broadcast("quiz_ended", payload)
}

// disconnect drops the mapping and, unless a reconnect already replaced this
// socket, removes the participant from the live roster.
func (c *client) disconnect() {
	defer c.ch.Close()
	if !c.h.conns.Unregister(c.code, c.id, c.ch) || c.isHost() {
		return
	}
	players, err := c.h.registry.Leave(c.code, c.id)
	if err != nil {
		return
	}
	c.broadcast("player_left", playersPayload{Players: players})
}

func (c *client) isHost() bool {
	return c.id == c.hostID
}

func (c *client) fail(err error) {
	c.h.logger.Debug("room operation rejected", "room", c.code, "participant", c.id, "error", err)
	c.unicast("error", errorPayload{Message: err.Error()})
}

func (c *client) unicast(event string, data any) {
	if err := c.ch.Send(app.Message{Event: event, Data: data}); err != nil {
		c.h.logger.Warn("unicast failed", "room", c.code, "participant", c.id, "event", event, "error", err)
	}
}

func (c *client) broadcast(event string, data any) {
	c.h.conns.Broadcast(c.code, app.Message{Event: event, Data: data})
}

// isDecodeError reports a well-framed message with a bad JSON body; the
// socket itself is still usable.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// identify resolves the caller. Guests get a generated guest_ id and a name
// trimmed to maxGuestName runes.
func identify(r *http.Request) (id, name string, ok bool) {
	q := r.URL.Query()
	if userID := strings.TrimSpace(q.Get("userId")); userID != "" {
		name = strings.TrimSpace(q.Get("name"))
		if name == "" {
			return "", "", false
		}
		return userID, name, true
	}
	guest := strings.TrimSpace(q.Get("guestName"))
	if guest == "" {
		return "", "", false
	}
	if utf8.RuneCountInString(guest) > maxGuestName {
		guest = string([]rune(guest)[:maxGuestName])
	}
	return "guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], guest, true
}
