package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type HookHandler struct {
	subs          *webhooks.Subscriptions
	signingSecret string
}

// NewHookHandler takes the master signing secret so owners can be shown the
// key their hook's deliveries are signed with.
func NewHookHandler(subs *webhooks.Subscriptions, signingSecret string) *HookHandler {
	return &HookHandler{subs: subs, signingSecret: signingSecret}
}

type hookResponse struct {
	*models.Hook
	SigningSecret string `json:"signing_secret,omitempty"`
}

func (h *HookHandler) present(hook *models.Hook) hookResponse {
	resp := hookResponse{Hook: hook}
	if h.signingSecret != "" {
		resp.SigningSecret = webhooks.HookSecret(h.signingSecret, hook.ID)
	}
	return resp
}

type createHookRequest struct {
	Event  string `json:"event"`
	Target string `json:"target"`
}

func (h *HookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	hook, err := h.subs.Subscribe(r.Context(), middleware.Owner(r), req.Event, req.Target)
	if err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.present(hook))
}

func (h *HookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.subs.List(r.Context(), middleware.Owner(r))
	if err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hooks)
}

func (h *HookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "hook_id")
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Hook not found", nil)
		return
	}

	hook, err := h.subs.Get(r.Context(), middleware.Owner(r), id)
	if err != nil {
		writeHookError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.present(hook))
}

func (h *HookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "hook_id")
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Hook not found", nil)
		return
	}

	if err := h.subs.Unsubscribe(r.Context(), middleware.Owner(r), id); err != nil {
		writeHookError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeHookError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, webhooks.ErrUnknownEvent):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeUnknownEvent, err.Error(), nil)
	case stderrors.Is(err, models.ErrInvalidTarget):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidTarget, err.Error(), nil)
	case stderrors.Is(err, repositories.ErrHookNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Hook not found", nil)
	default:
		log.Error().Err(err).Msg("hook request failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
