package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exam-runner/internal/middleware"
	"github.com/stemsi/exam-runner/internal/response"
	"github.com/stemsi/exam-runner/internal/service"
	"github.com/stemsi/exam-runner/internal/session"
	ws "github.com/stemsi/exam-runner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live exam session over WebSocket.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream?token=
// Pushes countdown ticks and session changes; accepts answer, goto, submit
// and ping actions.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	// Resolve the session before upgrading so a missing one is a plain 404.
	ctrl, err := h.sessionService.Get(c.Request.Context(), claims.UserID, examID, middleware.GetToken(c))
	if err != nil {
		failErr(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Int("exam_id", examID).
		Logger()
	wsLog.Info().Msg("Client connected")

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan interface{}, 8)
	done := make(chan struct{})
	go h.readLoop(ctx, conn, ctrl, out, done, wsLog)

	st := ctrl.State()
	if err := ws.WriteTyped(conn, ws.SnapshotResponse{
		Event:     ws.EventSnapshot,
		Session:   st,
		Remaining: session.FormatDuration(st.RemainingSeconds),
		Paper:     ctrl.Paper(),
	}); err != nil {
		return
	}

	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	// Only this goroutine writes to conn.
	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Connection closed")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, ev); err != nil {
				return
			}
			if ev.Type == service.EventSubmitted || ev.Type == service.EventExited {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)),
					time.Now().Add(time.Second))
				return
			}
		case msg := <-out:
			if err := ws.WriteTyped(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

// readLoop handles client actions until the connection drops.
// Replies go through out; state changes reach the client as broadcast events.
func (h *WSHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	ctrl *service.SessionController,
	out chan<- interface{},
	done chan<- struct{},
	wsLog zerolog.Logger,
) {
	defer close(done)

	send := func(v interface{}) {
		select {
		case out <- v:
		case <-ctx.Done():
		}
	}
	sendErr := func(err error) {
		_, code := errorCode(err)
		send(ws.NewError(string(code), err.Error()))
	}

	// Actions outlive the socket: a submission keeps going if the tab closes.
	actionCtx := context.WithoutCancel(ctx)

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			if _, err := ctrl.Answer(actionCtx, msg.QuestionID, msg.UserAnswer); err != nil {
				sendErr(err)
			}
		case ws.ActionGoto:
			if _, err := ctrl.Goto(actionCtx, msg.Index); err != nil {
				sendErr(err)
			}
		case ws.ActionSubmit:
			go func() {
				if _, err := ctrl.Submit(actionCtx); err != nil {
					// Failures are also broadcast by the controller; only the
					// guard rejection needs a direct reply.
					if _, code := errorCode(err); code != response.ErrBackendRejected && code != response.ErrBackendUnavailable {
						sendErr(err)
					}
				}
			}()
		case ws.ActionPing:
			send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			send(ws.NewError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action)))
		}
	}
}
