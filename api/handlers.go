package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
	"github.com/papercomputeco/echoes/pkg/triplet"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageRequest is the body of POST /messages.
type MessageRequest struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// MessageResponse acknowledges an inbound message.
type MessageResponse struct {
	ID       string `json:"id"`
	Buffered bool   `json:"buffered"`
}

// StatsResponse summarizes the pipeline.
type StatsResponse struct {
	lifecycle.Counts
	PendingMessages int `json:"pendingMessages"`
}

// DrainFailure is a message kept for retry by a drain.
type DrainFailure struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// DrainResponse is the outcome of POST /drain.
type DrainResponse struct {
	Processed     []string         `json:"processed"`
	Pending       int              `json:"pending"`
	Added         []triplet.Record `json:"added"`
	Failures      []DrainFailure   `json:"failures"`
	Retained      int              `json:"retained"`
	BufferCleared bool             `json:"bufferCleared"`
}

// BatchPublishRequest is the body of POST /triplets/publish. An empty id list
// publishes every pending record.
type BatchPublishRequest struct {
	IDs []string `json:"ids"`
}

// EditRequest is the body of PATCH /triplets/:id. Absent fields are left
// unchanged; triplet fields can only change while the record is atom-only.
type EditRequest struct {
	Subject           *string `json:"subject"`
	Predicate         *string `json:"predicate"`
	Object            *string `json:"object"`
	Intention         *string `json:"intention"`
	ObjectDescription *string `json:"objectDescription"`
	ObjectURL         *string `json:"objectUrl"`
}

// Apply copies the present fields onto r, trimming surrounding whitespace.
func (e EditRequest) Apply(r *triplet.Record) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&r.Triplet.Subject, e.Subject)
	set(&r.Triplet.Predicate, e.Predicate)
	set(&r.Triplet.Object, e.Object)
	set(&r.Intention, e.Intention)
	set(&r.ObjectDescription, e.ObjectDescription)
	set(&r.ObjectURL, e.ObjectURL)
}

// CleanupRequest is the body of POST /cleanup. Keep defaults to
// cleanup.DefaultKeep; All removes every record that is not in flight.
type CleanupRequest struct {
	Keep *int `json:"keep"`
	All  bool `json:"all"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns record counts and the number of buffered messages.
func (s *Server) handleStats(c *fiber.Ctx) error {
	ctx := c.Context()

	counts, err := s.deps.Machine.Counts(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to count triplets"})
	}

	pending, err := s.deps.Buffer.Pending(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read message buffer"})
	}

	return c.JSON(StatsResponse{Counts: counts, PendingMessages: len(pending)})
}

// handleCreateMessage accepts an agent message from the transport.
func (s *Server) handleCreateMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "text is required"})
	}

	msg := triplet.RawMessage{ID: req.ID, Text: req.Text, ReceivedAt: req.ReceivedAt}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	if s.deps.Ingest != nil {
		if !s.deps.Ingest.Enqueue(msg) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "ingest queue full"})
		}
		count(counterMessages)
		return c.Status(fiber.StatusAccepted).JSON(MessageResponse{ID: msg.ID, Buffered: true})
	}

	added, err := s.deps.Buffer.Enqueue(c.Context(), msg)
	if err != nil {
		s.logger.Error("failed to buffer message", "message_id", msg.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to buffer message"})
	}

	count(counterMessages)
	status := fiber.StatusCreated
	if !added {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(MessageResponse{ID: msg.ID, Buffered: added})
}

// handleDrain runs one drain of the message buffer.
func (s *Server) handleDrain(c *fiber.Ctx) error {
	result, err := s.deps.Buffer.Drain(c.Context())
	if errors.Is(err, buffer.ErrDrainInProgress) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		s.logger.Error("drain failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "drain failed"})
	}

	count(counterDrains)
	resp := DrainResponse{
		Processed:     result.Processed,
		Pending:       len(result.Pending),
		Added:         result.Added,
		Retained:      result.Retained,
		BufferCleared: result.BufferCleared,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, DrainFailure{MessageID: f.MessageID, Error: f.Err.Error()})
	}
	return c.JSON(resp)
}

// handleListTriplets returns the records, filtered by ?status=a,b when given.
func (s *Server) handleListTriplets(c *fiber.Ctx) error {
	var statuses []triplet.Status
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := triplet.Status(strings.TrimSpace(part))
			if !st.Valid() {
				return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown status " + string(st)})
			}
			statuses = append(statuses, st)
		}
	}

	records, err := s.deps.Machine.List(c.Context(), statuses...)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list triplets"})
	}

	return c.JSON(map[string]any{
		"count":    len(records),
		"triplets": records,
	})
}

// handleGetTriplet returns one record.
func (s *Server) handleGetTriplet(c *fiber.Ctx) error {
	r, err := s.deps.Machine.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.lifecycleError(c, err)
	}
	return c.JSON(r)
}

// handleEditTriplet updates the content fields of one record.
func (s *Server) handleEditTriplet(c *fiber.Ctx) error {
	var req EditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	r, err := s.deps.Machine.Mutate(c.Context(), c.Params("id"), req.Apply)
	if err != nil {
		return s.lifecycleError(c, err)
	}
	return c.JSON(r)
}

// handleCleanup purges the buffer, old records and legacy keys.
func (s *Server) handleCleanup(c *fiber.Ctx) error {
	var req CleanupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	opts := cleanup.Options{Keep: cleanup.DefaultKeep}
	switch {
	case req.All:
		opts.Keep = 0
	case req.Keep != nil:
		if *req.Keep < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "keep must not be negative"})
		}
		opts.Keep = *req.Keep
	}

	result, err := s.deps.Cleaner.Run(c.Context(), opts)
	if err != nil {
		s.logger.Error("cleanup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "cleanup incomplete"})
	}
	return c.JSON(result)
}

// handleForgetTriplet removes one record.
func (s *Server) handleForgetTriplet(c *fiber.Ctx) error {
	if err := s.deps.Machine.Forget(c.Context(), c.Params("id")); err != nil {
		return s.lifecycleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleCheckTriplet resolves the object atom of one record.
func (s *Server) handleCheckTriplet(c *fiber.Ctx) error {
	r, err := s.deps.Machine.BeginCheck(c.Context(), c.Params("id"))
	if err != nil {
		return s.lifecycleError(c, err)
	}
	return c.JSON(r)
}

// handlePublishTriplet publishes one record.
func (s *Server) handlePublishTriplet(c *fiber.Ctx) error {
	r, err := s.deps.Machine.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return s.lifecycleError(c, err)
	}
	count(counterPublishes)
	return c.JSON(r)
}

// handleBatchPublish publishes many records under one ledger call.
func (s *Server) handleBatchPublish(c *fiber.Ctx) error {
	var req BatchPublishRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	ids := req.IDs
	if len(ids) == 0 {
		pending, err := s.deps.Machine.Pending(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list pending triplets"})
		}
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
	}

	result, err := s.deps.Machine.BatchPublish(c.Context(), ids)
	if err != nil {
		return s.lifecycleError(c, err)
	}
	count(counterPublishes)
	return c.JSON(result)
}

// lifecycleError maps lifecycle errors onto HTTP statuses.
func (s *Server) lifecycleError(c *fiber.Ctx, err error) error {
	var (
		busy       *lifecycle.BusyError
		transition *lifecycle.TransitionError
		edit       *lifecycle.EditError
		dup        *lifecycle.DuplicateError
		ledgerErr  *lifecycle.LedgerError
		writeBack  *lifecycle.WriteBackError
	)
	count(counterErrors)

	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "triplet not found"})
	case errors.As(err, &busy), errors.As(err, &transition), errors.As(err, &edit), errors.As(err, &dup):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &ledgerErr):
		s.logger.Warn("ledger call failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: ledgerErr.Error()})
	case errors.As(err, &writeBack):
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: writeBack.Error()})
	default:
		s.logger.Error("lifecycle operation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}
