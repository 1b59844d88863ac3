package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	pdfjobs "github.com/alnah/go-pdfjobs"
)

// MaxBodySize limits request bodies (default 10MB).
var MaxBodySize int64 = 10 << 20

var errBadBody = errors.New("invalid request body")

type handlers struct {
	svc    Service
	logger zerolog.Logger
}

type errorBody struct {
	Status  pdfjobs.Status `json:"status"`
	Message string         `json:"message"`
}

// accept decodes a request of type T, runs op and answers 202 with the Ack.
func accept[T any](h *handlers, op func(context.Context, T) (pdfjobs.Ack, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		ack, err := op(r.Context(), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ack)
	}
}

// fillForm answers with the Result itself when ?sync=true.
func (h *handlers) fillForm(w http.ResponseWriter, r *http.Request) {
	sync, err := parseSync(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !sync {
		accept(h, h.svc.FillForm)(w, r)
		return
	}

	var req pdfjobs.FillFormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.FillFormSync(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseSync(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("sync")
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: sync=%q", errBadBody, v)
	}
	return b, nil
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"queueDepth": h.svc.QueueDepth(),
		"backlog":    h.svc.Backlog(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON object", errBadBody)
	}
	return nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadBody), pdfjobs.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, pdfjobs.ErrPoolClosed), errors.Is(err, pdfjobs.ErrNoRenderer):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Status: pdfjobs.StatusError, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
