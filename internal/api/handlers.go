package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyhall/internal/coordinator"
	"studyhall/internal/models"
	"studyhall/internal/oracle"
	"studyhall/internal/utils"
)

const maxQuizQuestions = 20

type Handlers struct {
	coord     *coordinator.Coordinator
	oracle    oracle.Provider // nil when generation is disabled
	logger    *zap.Logger
	jwtSecret []byte
	upgrader  websocket.Upgrader
}

func NewHandlers(coord *coordinator.Coordinator, provider oracle.Provider, logger *zap.Logger, jwtSecret []byte) *Handlers {
	return &Handlers{
		coord:     coord,
		oracle:    provider,
		logger:    logger,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) identity(r *http.Request) (models.Identity, bool) {
	token := utils.BearerToken(r)
	if token == "" {
		return models.Identity{}, false
	}
	identity, err := utils.ParseIdentityToken(token, h.jwtSecret)
	if err != nil {
		return models.Identity{}, false
	}
	return identity, true
}

// writeErr translates coordinator and oracle errors into HTTP responses.
func (h *Handlers) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrRoomNotFound):
		utils.WriteJSON(w, http.StatusNotFound, models.Resp{OK: false, Info: "room does not exist"})
	case errors.Is(err, coordinator.ErrPermissionDenied):
		utils.WriteJSON(w, http.StatusForbidden, models.Resp{OK: false, Info: "permission denied"})
	case errors.Is(err, coordinator.ErrNotParticipant):
		utils.WriteJSON(w, http.StatusForbidden, models.Resp{OK: false, Info: "not a participant of this room"})
	case errors.Is(err, coordinator.ErrInvalidQuizTransition):
		utils.WriteJSON(w, http.StatusConflict, models.Resp{OK: false, Info: "quiz state does not allow this"})
	case errors.Is(err, oracle.ErrMalformedResponse):
		utils.WriteJSON(w, http.StatusBadGateway, models.Resp{OK: false, Info: "content generation failed"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, models.Resp{OK: false, Info: "internal error"})
	}
}

func (h *Handlers) unauthorized(w http.ResponseWriter) {
	utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "identity token required"})
}

// --- Room lifecycle ---

func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	code, _, err := h.coord.CreateRoom(r.Context(), identity, nil)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, models.CreateRoomResp{OK: true, Code: code})
}

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(r); !ok {
		h.unauthorized(w)
		return
	}

	doc, err := h.coord.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	if _, err := h.coord.JoinRoom(r.Context(), chi.URLParam(r, "code"), identity, nil); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "joined"})
}

func (h *Handlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	if err := h.coord.LeaveRoom(r.Context(), chi.URLParam(r, "code"), identity); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "left"})
}

// --- Shared content ---

func (h *Handlers) SendChat(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req models.ChatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "text required"})
		return
	}

	if err := h.coord.SendChatMessage(r.Context(), chi.URLParam(r, "code"), identity, req.Text); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "sent"})
}

func (h *Handlers) ShareNotes(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req models.NotesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Lines) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "lines required"})
		return
	}

	if err := h.coord.ShareNotes(r.Context(), chi.URLParam(r, "code"), identity, req.Lines); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "shared"})
}

// GenerateNotes asks the oracle for note lines and shares them as a block
// under the caller's name. Oracle failure leaves session state untouched.
func (h *Handlers) GenerateNotes(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	if h.oracle == nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, models.Resp{OK: false, Info: "content generation is disabled"})
		return
	}

	var req models.GenerateNotesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "topic required"})
		return
	}

	// Check the share gate before spending an oracle call.
	code := chi.URLParam(r, "code")
	doc, err := h.coord.Snapshot(r.Context(), code)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !doc.CanShare(identity.ID) {
		h.writeErr(w, coordinator.ErrPermissionDenied)
		return
	}

	lines, err := h.oracle.GenerateNotes(r.Context(), req.Topic)
	if err != nil {
		h.logger.Error("note generation failed", zap.Error(err), zap.String("topic", req.Topic))
		h.writeErr(w, err)
		return
	}

	if err := h.coord.ShareNotes(r.Context(), code, identity, lines); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "shared"})
}

func (h *Handlers) SetPermission(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req models.PermissionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "participantId required"})
		return
	}

	err := h.coord.SetSharePermission(r.Context(), chi.URLParam(r, "code"), identity, req.ParticipantID, req.CanShare)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "updated"})
}

// --- Quiz ---

func (h *Handlers) StartQuiz(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req models.StartQuizReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "invalid json"})
		return
	}

	questions := req.Questions
	if len(questions) == 0 {
		if strings.TrimSpace(req.Topic) == "" {
			utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "questions or topic required"})
			return
		}
		if h.oracle == nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, models.Resp{OK: false, Info: "content generation is disabled"})
			return
		}
		count := req.Count
		if count <= 0 || count > maxQuizQuestions {
			count = 5
		}
		var err error
		questions, err = h.oracle.GenerateQuiz(r.Context(), req.Topic, count)
		if err != nil {
			h.logger.Error("quiz generation failed", zap.Error(err), zap.String("topic", req.Topic))
			h.writeErr(w, err)
			return
		}
	}

	if err := h.coord.StartQuiz(r.Context(), chi.URLParam(r, "code"), identity, questions); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "quiz started"})
}

func (h *Handlers) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var req models.AnswerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "invalid json"})
		return
	}

	if err := h.coord.SubmitAnswer(r.Context(), chi.URLParam(r, "code"), identity, req.OptionIndex); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: "answer recorded"})
}

func (h *Handlers) RevealAnswer(w http.ResponseWriter, r *http.Request) {
	h.quizTransition(w, r, h.coord.RevealAnswer, "revealed")
}

func (h *Handlers) NextQuestion(w http.ResponseWriter, r *http.Request) {
	h.quizTransition(w, r, h.coord.NextQuestion, "advanced")
}

func (h *Handlers) EndQuiz(w http.ResponseWriter, r *http.Request) {
	h.quizTransition(w, r, h.coord.EndQuiz, "ended")
}

func (h *Handlers) ResetQuiz(w http.ResponseWriter, r *http.Request) {
	h.quizTransition(w, r, h.coord.ResetQuiz, "reset")
}

func (h *Handlers) quizTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, code string, identity models.Identity) error, info string) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	if err := op(r.Context(), chi.URLParam(r, "code"), identity); err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.Resp{OK: true, Info: info})
}

// --- WebSocket snapshot stream ---

// wsClient serializes writes; snapshots arrive from the subscription
// goroutine while error frames come from the handler.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(frame models.WSFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(frame)
}

// RoomWS joins the caller to the room (a no-op if already a member) and
// streams full-document snapshots until the socket closes or the session is
// deleted. Closing the socket detaches the feed but does not leave the room;
// leaving is an explicit operation.
func (h *Handlers) RoomWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(r)
	if !ok {
		h.unauthorized(w)
		return
	}
	code := chi.URLParam(r, "code")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn}

	detach, err := h.coord.JoinRoom(r.Context(), code, identity, func(doc *models.Session) {
		if doc == nil {
			client.send(models.WSFrame{Type: "deleted"})
			_ = conn.Close()
			return
		}
		client.send(models.WSFrame{Type: "snapshot", Data: doc})
	})
	if err != nil {
		if errors.Is(err, coordinator.ErrRoomNotFound) {
			client.send(models.WSFrame{Type: "error", Data: "room does not exist"})
		} else {
			h.logger.Error("websocket join failed", zap.Error(err))
			client.send(models.WSFrame{Type: "error", Data: "internal error"})
		}
		_ = conn.Close()
		return
	}

	h.logger.Info("websocket connected",
		zap.String("code", code), zap.String("userId", identity.ID))

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	// Detach only this socket's feed; a reconnect may have installed a newer
	// feed for the same user, which must keep flowing.
	detach()
	_ = conn.Close()
	h.logger.Info("websocket disconnected",
		zap.String("code", code), zap.String("userId", identity.ID))
}
