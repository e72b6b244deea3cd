package ai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// TurnEmitter is the transport back to the caller. Fire-and-forget: emitters
// tolerate the receiving endpoint being gone, and TargetAlive lets the turn
// abort silently when it is.
type TurnEmitter interface {
	EmitDelta(delta string)
	EmitTurnComplete(answer string, sources []string)
	EmitTurnError(message string)
	TargetAlive() bool
}

// sseEmitter streams turn events over server-sent events.
type sseEmitter struct {
	mu sync.Mutex
	c  echo.Context
}

func newSSEEmitter(c echo.Context) *sseEmitter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	return &sseEmitter{c: c}
}

func (e *sseEmitter) send(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Write errors mean the client went away; TargetAlive picks that up.
	_, _ = fmt.Fprintf(e.c.Response(), "event: %s\ndata: %s\n\n", event, data)
	e.c.Response().Flush()
}

func (e *sseEmitter) EmitDelta(delta string) {
	e.send("delta", map[string]string{"text": delta})
}

func (e *sseEmitter) EmitTurnComplete(answer string, sources []string) {
	if sources == nil {
		sources = []string{}
	}
	e.send("complete", map[string]any{"answer": answer, "sources": sources})
}

func (e *sseEmitter) EmitTurnError(message string) {
	e.send("error", map[string]string{"message": message})
}

func (e *sseEmitter) TargetAlive() bool {
	select {
	case <-e.c.Request().Context().Done():
		return false
	default:
		return true
	}
}
