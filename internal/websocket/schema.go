package websocket

import (
	"github.com/stemsi/exam-runner/internal/model"
	"github.com/stemsi/exam-runner/internal/service"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionGoto   Action = "goto"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is a client message. Fields not used by an action are ignored.
type Request struct {
	Action     Action `json:"action"`
	QuestionID int    `json:"question_id,omitempty"`
	UserAnswer string `json:"user_answer,omitempty"`
	Index      int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Server events reuse the controller's event names and add the two that
// only exist on the socket.
const (
	EventSnapshot service.EventType = "snapshot"
	EventPong     service.EventType = "pong"
)

// SnapshotResponse is the first message on every connection.
type SnapshotResponse struct {
	Event     service.EventType `json:"event"`
	Session   model.ExamSession `json:"session"`
	Remaining string            `json:"remaining"`
	Paper     *model.ExamPaper  `json:"paper"`
}

type ErrorResponse struct {
	Event service.EventType `json:"event"`
	Code  string            `json:"code,omitempty"`
	Error string            `json:"error"`
}

type PongResponse struct {
	Event service.EventType `json:"event"`
}
