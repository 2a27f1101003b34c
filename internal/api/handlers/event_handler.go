package handlers

import (
	"encoding/json"
	"net/http"

	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
)

type EventHandler struct {
	catalog  *catalog.Catalog
	notifier *webhooks.Notifier
}

func NewEventHandler(cat *catalog.Catalog, notifier *webhooks.Notifier) *EventHandler {
	return &EventHandler{catalog: cat, notifier: notifier}
}

type customEventRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	// SendHookMeta defaults to true
	SendHookMeta *bool `json:"send_hook_meta"`
}

// Fire raises a custom event on behalf of the authenticated user.
func (h *EventHandler) Fire(w http.ResponseWriter, r *http.Request) {
	var req customEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}

	var opts []webhooks.CustomOption
	if req.SendHookMeta != nil && !*req.SendHookMeta {
		opts = append(opts, webhooks.WithoutHookMeta())
	}

	if err := h.notifier.NotifyCustom(r.Context(), req.Event, req.Data, middleware.Owner(r), opts...); err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event": req.Event, "status": "accepted"})
}

type notificationRequest struct {
	ResourceType string          `json:"resource_type"`
	Action       string          `json:"action"`
	Instance     json.RawMessage `json:"instance"`
}

// Notify reports a lifecycle change of one of the caller's resources. The
// owner is always the authenticated user; broadcast events reach every
// subscriber regardless. Changes without a catalog entry are accepted and
// ignored.
func (h *EventHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.ResourceType == "" || req.Action == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "resource_type and action are required", nil)
		return
	}
	if len(req.Instance) == 0 {
		req.Instance = json.RawMessage("null")
	}

	if err := h.notifier.Notify(r.Context(), req.ResourceType, req.Action, req.Instance, middleware.Owner(r)); err != nil {
		writeHookError(w, err)
		return
	}

	resp := map[string]string{"status": "ignored"}
	if def, ok := h.catalog.Resolve(req.ResourceType, req.Action); ok {
		resp = map[string]string{"event": def.Name, "status": "accepted"}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Definitions())
}
