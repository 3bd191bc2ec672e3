// Package handler is the invocation surface shared by the scheduled host
// and the interactive trigger. An event discriminator selects between the
// full resync and the bulk file import; both are also exposed as directly
// callable entry points through the CLI.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shopsync/internal/importer"
	"shopsync/internal/syncer"

	"go.uber.org/zap"
)

// ActionBulkImport selects the bulk file import behavior.
const ActionBulkImport = "bulk_import"

// Event is the invocation payload. Either discriminator field may carry
// the action; an empty event runs a full resync.
type Event struct {
	Action string `json:"action,omitempty"`
	Source string `json:"source,omitempty"`
}

// Response is the exit shape returned for every invocation. A completed
// run, including a partial success, returns 200; 500 is reserved for an
// unrecovered error escaping the orchestrator.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type responseBody struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Results   any    `json:"results,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handler routes invocation events to the orchestrator or the importer
type Handler struct {
	orchestrator *syncer.Orchestrator
	importer     *importer.Importer
	logger       *zap.Logger
}

// New creates a handler; importer may be nil when file import is not
// configured.
func New(orchestrator *syncer.Orchestrator, imp *importer.Importer, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		importer:     imp,
		logger:       logger,
	}
}

// Handle processes one invocation. It always returns a structured result
// describing per-resource success/failure and counts, even under total
// failure, so a caller never infers pipeline health from logs alone.
func (h *Handler) Handle(ctx context.Context, evt Event) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Unrecovered error escaping pipeline", zap.Any("panic", r))
			resp = errorResponse(fmt.Sprintf("internal error: %v", r))
		}
	}()

	if evt.Action == ActionBulkImport || evt.Source == ActionBulkImport {
		return h.handleImport(ctx)
	}
	return h.handleSync(ctx)
}

// HandleSync runs a full resync; it is the directly callable sync entry point.
func (h *Handler) HandleSync(ctx context.Context) Response {
	return h.Handle(ctx, Event{})
}

// HandleImport runs a bulk file import; it is the directly callable import
// entry point.
func (h *Handler) HandleImport(ctx context.Context) Response {
	return h.Handle(ctx, Event{Action: ActionBulkImport})
}

func (h *Handler) handleSync(ctx context.Context) Response {
	if h.orchestrator == nil {
		return errorResponse("upstream API is not configured")
	}

	result := h.orchestrator.Run(ctx)
	return okResponse(fmt.Sprintf("sync completed with status %s", result.Status), result)
}

func (h *Handler) handleImport(ctx context.Context) Response {
	if h.importer == nil {
		return errorResponse("bulk file import is not configured")
	}

	result, err := h.importer.Run(ctx)
	if err != nil {
		h.logger.Error("Bulk import failed", zap.Error(err))
		return errorResponse(err.Error())
	}
	return okResponse("bulk import completed", result)
}

func okResponse(message string, results any) Response {
	return Response{
		StatusCode: http.StatusOK,
		Body: encodeBody(responseBody{
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Results:   results,
		}),
	}
}

func errorResponse(msg string) Response {
	return Response{
		StatusCode: http.StatusInternalServerError,
		Body: encodeBody(responseBody{
			Message:   "sync failed",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     msg,
		}),
	}
}

func encodeBody(body responseBody) string {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"message":"sync failed","error":%q}`, err.Error())
	}
	return string(data)
}
