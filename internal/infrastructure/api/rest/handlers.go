package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/eventbus"
	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
)

// RequestReader is the read-model seam the status and snapshot endpoints
// depend on. storage.RequestRepository implements this.
type RequestReader interface {
	FindByID(ctx context.Context, id string) (*domain.GenerationRequest, error)
}

// Dispatcher enqueues a request for worker pickup.
type Dispatcher interface {
	Enqueue(ctx context.Context, requestID, organizationID string) error
}

// Handlers implements C13's four endpoints: dispatch, status read, SSE
// stream, and WebSocket stream.
type Handlers struct {
	Requests RequestReader
	Pool     Dispatcher
	Bus      *eventbus.Bus
	Logger   *logger.Logger
}

// NewHandlers constructs a Handlers.
func NewHandlers(requests RequestReader, pool Dispatcher, bus *eventbus.Bus, log *logger.Logger) *Handlers {
	return &Handlers{Requests: requests, Pool: pool, Bus: bus, Logger: log}
}

type dispatchBody struct {
	OrganizationID string `json:"organizationId" binding:"required"`
}

// HandleDispatch handles POST /v1/requests/:id/dispatch.
func (h *Handlers) HandleDispatch(c *gin.Context) {
	requestID := c.Param("id")

	var body dispatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, NewAPIError("BAD_REQUEST", fmt.Sprintf("invalid body: %s", err.Error()), http.StatusBadRequest))
		return
	}

	if _, err := h.Requests.FindByID(c.Request.Context(), requestID); err != nil {
		respondError(c, NewAPIError("NOT_FOUND", "request not found", http.StatusNotFound))
		return
	}

	if err := h.Pool.Enqueue(c.Request.Context(), requestID, body.OrganizationID); err != nil {
		h.Logger.ErrorContext(c.Request.Context(), "enqueue failed", "requestId", requestID, "error", err)
		respondError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"requestId": requestID, "status": "queued"})
}

// requestStatusDTO is the status read model. It is a deliberately flat
// projection of domain.GenerationRequest, not the storage row shape.
type requestStatusDTO struct {
	ID               string                     `json:"id"`
	Status           domain.RequestStatus       `json:"status"`
	CompletionReason domain.CompletionReason    `json:"completionReason,omitempty"`
	CurrentIteration int                        `json:"currentIteration"`
	MaxIterations    int                        `json:"maxIterations"`
	Threshold        float64                    `json:"threshold"`
	GenerationMode   domain.GenerationMode      `json:"generationMode"`
	FinalImageID     string                     `json:"finalImageId,omitempty"`
	ErrorMessage     string                     `json:"errorMessage,omitempty"`
	Costs            domain.CostAccumulator     `json:"costs"`
	Iterations       []domain.IterationSnapshot `json:"iterations"`
	CreatedAt        time.Time                  `json:"createdAt"`
	CompletedAt      *time.Time                 `json:"completedAt,omitempty"`
}

func toStatusDTO(req *domain.GenerationRequest) requestStatusDTO {
	return requestStatusDTO{
		ID:               req.ID,
		Status:           req.Status,
		CompletionReason: req.CompletionReason,
		CurrentIteration: req.CurrentIteration,
		MaxIterations:    req.MaxIterations,
		Threshold:        req.Threshold,
		GenerationMode:   req.GenerationMode,
		FinalImageID:     req.FinalImageID,
		ErrorMessage:     req.ErrorMessage,
		Costs:            req.Costs,
		Iterations:       req.Iterations,
		CreatedAt:        req.CreatedAt,
		CompletedAt:      req.CompletedAt,
	}
}

// HandleGetRequest handles GET /v1/requests/:id.
func (h *Handlers) HandleGetRequest(c *gin.Context) {
	req, err := h.Requests.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, NewAPIError("NOT_FOUND", "request not found", http.StatusNotFound))
		return
	}
	c.JSON(http.StatusOK, toStatusDTO(req))
}

// HandleEvents handles GET /v1/requests/:id/events, a Server-Sent-Events
// stream of the request's lifecycle events. The first event on a fresh
// subscription is always initial_state, delivered synchronously by the bus.
func (h *Handlers) HandleEvents(c *gin.Context) {
	requestID := c.Param("id")

	sub := h.Bus.Subscribe(requestID)
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	seq := 0

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return false
			}
			writeSSEEvent(w, seq, event)
			seq++
			return !event.Type.IsTerminal()
		case <-ctx.Done():
			return false
		}
	})
}

func writeSSEEvent(w io.Writer, seq int, event eventbus.Event) {
	payload, err := json.Marshal(struct {
		Type      string      `json:"type"`
		Data      interface{} `json:"data"`
		Timestamp time.Time   `json:"timestamp"`
		ID        int         `json:"id"`
	}{
		Type:      strings.ToLower(string(event.Type)),
		Data:      event.Data,
		Timestamp: event.Timestamp,
		ID:        seq,
	})
	if err != nil {
		return
	}

	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, strings.ToLower(string(event.Type)), payload)
}
