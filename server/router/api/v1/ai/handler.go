package ai

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/paperlens/paperlens/plugin/ai"
	"github.com/paperlens/paperlens/server/middleware"
)

// Handler exposes the assistant over HTTP.
type Handler struct {
	chat          *ChatService
	conversations *ConversationService
	papers        *PaperService
}

// NewHandler creates the HTTP handler.
func NewHandler(chat *ChatService, conversations *ConversationService, papers *PaperService) *Handler {
	return &Handler{chat: chat, conversations: conversations, papers: papers}
}

// RegisterRoutes mounts the assistant API on the group.
func (h *Handler) RegisterRoutes(g *echo.Group, limiter *middleware.RateLimiter) {
	if limiter != nil {
		g.Use(limiter.Middleware())
	}

	g.POST("/assistant/chat", h.chatHandler)

	g.GET("/conversations", h.listConversations)
	g.POST("/conversations", h.createConversation)
	g.GET("/conversations/:uid/messages", h.listMessages)
	g.GET("/conversations/:uid/metrics", h.sessionMetrics)
	g.POST("/conversations/:uid/separator", h.insertSeparator)
	g.DELETE("/conversations/:uid", h.deleteConversation)

	g.GET("/papers", h.listPapers)
	g.POST("/papers", h.registerPaper)
	g.DELETE("/papers/:uid", h.deletePaper)
}

type chatRequest struct {
	ConversationUID string              `json:"conversation_uid"`
	Question        string              `json:"question"`
	Excerpts        []ai.ContextExcerpt `json:"excerpts"`
}

// chatHandler runs one turn and streams events back over SSE. Turn failures
// are reported as SSE error events, not HTTP errors; by the time they occur
// the response is already streaming.
func (h *Handler) chatHandler(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if req.ConversationUID == "" {
		req.ConversationUID = shortuuid.New()
	}

	emitter := newSSEEmitter(c)
	_ = h.chat.ProcessTurn(c.Request().Context(), req.ConversationUID, req.Question, req.Excerpts, emitter)
	return nil
}

type createConversationRequest struct {
	PaperUID string `json:"paper_uid"`
	Title    string `json:"title"`
}

func (h *Handler) createConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	conv, err := h.conversations.Create(c.Request().Context(), req.PaperUID, req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) listConversations(c echo.Context) error {
	list, err := h.conversations.List(c.Request().Context(), c.QueryParam("paper_uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) listMessages(c echo.Context) error {
	list, err := h.conversations.Messages(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) sessionMetrics(c echo.Context) error {
	metrics := h.conversations.Metrics(c.Param("uid"))
	if metrics == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no live session")
	}
	return c.JSON(http.StatusOK, metrics)
}

func (h *Handler) insertSeparator(c echo.Context) error {
	if err := h.conversations.InsertSeparator(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) deleteConversation(c echo.Context) error {
	if err := h.conversations.Delete(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type registerPaperRequest struct {
	Title    string              `json:"title"`
	URL      string              `json:"url"`
	Authors  string              `json:"authors"`
	Abstract string              `json:"abstract"`
	Excerpts []ai.ContextExcerpt `json:"excerpts"`
}

func (h *Handler) registerPaper(c echo.Context) error {
	var req registerPaperRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	paper, err := h.papers.Register(c.Request().Context(), req.Title, req.URL, req.Authors, req.Abstract, req.Excerpts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, paper)
}

func (h *Handler) listPapers(c echo.Context) error {
	list, err := h.papers.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) deletePaper(c echo.Context) error {
	if err := h.papers.Delete(c.Request().Context(), c.Param("uid")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
