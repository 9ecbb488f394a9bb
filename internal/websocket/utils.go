package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/stemsi/exam-runner/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// Actions are tiny; anything larger is a misbehaving client.
	maxMessageSize = 4 << 10
)

// PingPeriod is how often the server pings an idle client.
const PingPeriod = pingPeriod

// Prepare applies read limits and keeps the read deadline alive on pongs.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// NewError builds the ErrorResponse pushed to a client for a rejected action.
func NewError(code, errMsg string) ErrorResponse {
	return ErrorResponse{
		Event: service.EventError,
		Code:  code,
		Error: errMsg,
	}
}

// WritePing sends a control ping.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ReadJSON reads and decodes a message, extending the read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	return conn.ReadJSON(v)
}
