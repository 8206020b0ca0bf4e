package adapter

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"poshook/internal/delivery"
	"poshook/internal/journal"
	"poshook/internal/logger"
	"poshook/internal/normalizer"
	"poshook/pkg/errors"
)

// DispatcherView is the read side of the dispatcher used by the API.
type DispatcherView interface {
	Get(id string) (delivery.Attempt, bool)
	Stats() delivery.Stats
}

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

type Handler struct {
	BaseHandler
	pipeline   *Pipeline
	dispatcher DispatcherView
	journal    journal.Store
}

// NewHandler serves the ingress and delivery status API. store may be nil
// when the journal is disabled.
func NewHandler(pipeline *Pipeline, dispatcher DispatcherView, store journal.Store, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		journal:     store,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		notifications := v1.Group("/notifications")
		{
			notifications.POST("/orders", h.PostOrder)
			notifications.POST("/deliveries", h.PostDelivery)
		}

		v1.GET("/deliveries/:id", h.GetDelivery)
		v1.GET("/dispatcher/stats", h.GetStats)
	}
}

type DeliveryNotification struct {
	Order      *normalizer.DeliveryOrder `json:"order"`
	Restaurant *normalizer.Restaurant    `json:"restaurant"`
}

type AcceptedResponse struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id,omitempty"`
	Entity    string `json:"entity,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

type AttemptResponse struct {
	AttemptID   string     `json:"attempt_id"`
	Entity      string     `json:"entity"`
	EventType   string     `json:"event_type"`
	Outcome     string     `json:"outcome"`
	Attempts    int        `json:"attempts"`
	HTTPStatus  int        `json:"http_status,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Delays      []string   `json:"delays,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (h *Handler) PostOrder(c *gin.Context) {
	var order normalizer.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	out, err := h.pipeline.HandleOrder(c.Request.Context(), &order, SourceHTTP)
	h.respond(c, out, err)
}

func (h *Handler) PostDelivery(c *gin.Context) {
	var req DeliveryNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	out, err := h.pipeline.HandleDelivery(c.Request.Context(), req.Order, req.Restaurant, SourceHTTP)
	h.respond(c, out, err)
}

func (h *Handler) respond(c *gin.Context, out Outcome, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := AcceptedResponse{
		Status:    "accepted",
		AttemptID: out.AttemptID,
		Entity:    out.EntityKey,
		EventType: string(out.Kind),
	}
	if out.Filtered {
		resp.Status = "filtered"
	}
	c.JSON(http.StatusAccepted, resp)
}

// GetDelivery looks an attempt up in the dispatcher first and falls back
// to the journal once it reached a terminal outcome.
func (h *Handler) GetDelivery(c *gin.Context) {
	id := c.Param("id")

	if a, ok := h.dispatcher.Get(id); ok {
		c.JSON(http.StatusOK, attemptResponse(a))
		return
	}

	if h.journal == nil {
		h.HandleError(c, errors.ErrNotFound.WithMessage("delivery attempt not found").WithDetail("attempt_id", id))
		return
	}

	rec, err := h.journal.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse(rec))
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Stats())
}

func attemptResponse(a delivery.Attempt) AttemptResponse {
	resp := AttemptResponse{
		AttemptID:   a.ID,
		Entity:      a.Payload.EntityKey(),
		EventType:   string(a.Payload.EventType),
		Outcome:     string(a.Outcome),
		Attempts:    a.AttemptNumber,
		HTTPStatus:  a.LastStatus,
		LastError:   a.LastErrorString(),
		NextRetryAt: a.NextRetryAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	for _, d := range a.Delays {
		resp.Delays = append(resp.Delays, d.String())
	}
	return resp
}

func recordResponse(rec *journal.Record) AttemptResponse {
	return AttemptResponse{
		AttemptID:   rec.AttemptID,
		Entity:      rec.EntityType + ":" + rec.EntityID,
		EventType:   rec.EventType,
		Outcome:     rec.Outcome,
		Attempts:    rec.Attempts,
		HTTPStatus:  rec.HTTPStatus,
		LastError:   rec.LastError,
		NextRetryAt: rec.NextRetryAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
