package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/pipeline"
)

const writeWait = 10 * time.Second

// StreamRequest is the single message a websocket client sends
type StreamRequest struct {
	Mode    string          `json:"mode"`
	Request json.RawMessage `json:"request"`
}

// StreamMessage is sent by the server: one "stage" message per pipeline
// transition, then a final "result" or "error".
type StreamMessage struct {
	Type   string                `json:"type"`
	Stage  *pipeline.StageEvent  `json:"stage,omitempty"`
	RunID  string                `json:"run_id,omitempty"`
	Final  *advice.StrategyDraft `json:"final,omitempty"`
	Status int                   `json:"status,omitempty"`
	Error  *ErrorBody            `json:"error,omitempty"`
}

// Stream message types
const (
	StreamStage  = "stage"
	StreamResult = "result"
	StreamError  = "error"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.send(conn, StreamMessage{Type: StreamError, Status: http.StatusBadRequest,
			Error: &ErrorBody{Error: "invalid_request", Message: "malformed request: " + err.Error()}})
		return
	}

	obs := func(ev pipeline.StageEvent) {
		s.send(conn, StreamMessage{Type: StreamStage, Stage: &ev})
	}

	st, err := s.runStream(r, req, obs)
	if err == nil && st != nil && st.Succeeded() {
		s.send(conn, StreamMessage{Type: StreamResult, RunID: st.RunID, Final: st.Final})
	} else {
		status, body := Classify(st, err)
		msg := StreamMessage{Type: StreamError, Status: status, Error: &body}
		if st != nil {
			msg.RunID = st.RunID
		}
		s.send(conn, msg)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Server) runStream(r *http.Request, req StreamRequest, obs pipeline.Observer) (*pipeline.State, error) {
	switch req.Mode {
	case advice.ModePreGame:
		var body pipeline.PreGameRequest
		if err := json.Unmarshal(req.Request, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
		return s.ctrl.PreGame(r.Context(), body, obs)
	case advice.ModeInGame:
		var body pipeline.InGameRequest
		if err := json.Unmarshal(req.Request, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
		return s.ctrl.InGame(r.Context(), body, obs)
	}
	return nil, fmt.Errorf("%w: unknown mode %q", pipeline.ErrInvalidRequest, req.Mode)
}

// send writes one message. A client that went away is logged once per
// message and otherwise ignored; the run still completes.
func (s *Server) send(conn *websocket.Conn, msg StreamMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
