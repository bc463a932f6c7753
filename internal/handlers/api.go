// Package handlers exposes the monitor's observables and user controls over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"smokealert/internal/logger"
	"smokealert/internal/models"
	"smokealert/internal/status"
)

const maxBodySize = 4 * 1024

// ThresholdSetter is satisfied by *threshold.Store
type ThresholdSetter interface {
	Set(ctx context.Context, v int) error
}

// BuzzerSetter is satisfied by *controls.Buzzer
type BuzzerSetter interface {
	Set(ctx context.Context, on bool) error
}

// PermissionSetter is satisfied by *notify.Center
type PermissionSetter interface {
	Permitted() bool
	SetPermitted(v bool)
}

// Notices receives user-visible messages
type Notices interface {
	Error(msg string)
}

// StatusHandler serves the board view
type StatusHandler struct {
	Board *status.Board
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Board.View())
}

// ThresholdRequest is the body of PUT /threshold
type ThresholdRequest struct {
	Threshold *int `json:"threshold"`
}

// ThresholdHandler updates the alert threshold
type ThresholdHandler struct {
	Store   ThresholdSetter
	Notices Notices
}

func (h *ThresholdHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Threshold == nil {
		writeError(w, http.StatusBadRequest, "threshold is required")
		return
	}

	err := h.Store.Set(r.Context(), *req.Threshold)
	switch {
	case errors.Is(err, models.ErrThresholdRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		// applied locally; only the remote write failed
		h.Notices.Error("Failed to update smoke threshold")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]int{"threshold": *req.Threshold})
	}
}

// ToggleRequest is the body of PUT /buzzer and PUT /permission
type ToggleRequest struct {
	On bool `json:"on"`
}

// BuzzerHandler toggles the buzzer self-test
type BuzzerHandler struct {
	Buzzer BuzzerSetter
}

func (h *BuzzerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Buzzer.Set(r.Context(), req.On); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"on": req.On})
}

// PermissionHandler grants or revokes persistent notifications
type PermissionHandler struct {
	Permissions PermissionSetter
}

func (h *PermissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var req ToggleRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Permissions.SetPermitted(req.On)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"on": h.Permissions.Permitted()})
}

// Health reports process liveness
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("http")
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
