// Package handler maps provisioning requests to structured responses.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/txn2/table-masker/pkg/masking"
)

// Response messages for the fixed failure classes.
const (
	msgConnectionFailed = "DB connection failed"
	msgInternalError    = "Internal error during masking process"
)

// Provisioner runs a provisioning request. *masking.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context, req masking.Request) (*masking.Outcome, error)
}

// Response is the structured result of one invocation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Handler validates payloads and drives the provisioner.
type Handler struct {
	provisioner Provisioner
	newID       func() string
}

// New creates a Handler.
func New(p Provisioner) *Handler {
	return &Handler{
		provisioner: p,
		newID:       uuid.NewString,
	}
}

// Handle processes one payload with "schema_name" and "partition_name" keys.
// It never panics; every failure becomes a Response.
func (h *Handler) Handle(ctx context.Context, payload map[string]any) (resp Response) {
	req := masking.Request{
		ID:        h.newID(),
		Schema:    stringField(payload, "schema_name"),
		Partition: stringField(payload, "partition_name"),
	}

	if missing := req.MissingFields(); len(missing) > 0 {
		slog.Warn("rejecting provisioning request", "request_id", req.ID, "missing", missing)
		return Response{
			StatusCode: http.StatusBadRequest,
			Body:       "Missing " + strings.Join(missing, " and "),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("unexpected error during masking", "request_id", req.ID, "panic", r)
			resp = Response{StatusCode: http.StatusInternalServerError, Body: msgInternalError}
		}
	}()

	outcome, err := h.provisioner.Provision(ctx, req)
	if err != nil {
		return errorResponse(req, err)
	}
	return outcomeResponse(req, outcome)
}

func errorResponse(req masking.Request, err error) Response {
	switch masking.KindOf(err) {
	case masking.KindBadRequest:
		return Response{StatusCode: http.StatusBadRequest, Body: "Missing " + strings.Join(req.MissingFields(), " and ")}
	case masking.KindConnection:
		return Response{StatusCode: http.StatusInternalServerError, Body: msgConnectionFailed}
	case masking.KindNotFound:
		return Response{StatusCode: http.StatusNotFound, Body: "Schema folder not found: " + req.Schema}
	default:
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInternalError}
	}
}

// outcomeResponse reports success when every table was created, or when at
// least one was. A request where every attempted table failed is an internal error.
func outcomeResponse(req masking.Request, outcome *masking.Outcome) Response {
	if outcome.Attempted() > 0 && len(outcome.Created) == 0 {
		slog.Error("every masking template failed",
			"request_id", req.ID, "failed", outcome.FailedTables())
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInternalError}
	}

	body := fmt.Sprintf("Masked tables created in schema '%s' from source schema '%s' for partition '%s'",
		masking.DestinationSchema, req.Schema, req.Partition)
	if len(outcome.Failed) > 0 {
		body += fmt.Sprintf(" (%d of %d failed: %s)",
			len(outcome.Failed), outcome.Attempted(), strings.Join(outcome.FailedTables(), ", "))
	}
	return Response{StatusCode: http.StatusOK, Body: body}
}

// stringField returns payload[key] if it is a string, else "".
func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
