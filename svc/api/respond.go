package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// fail maps err to a status and code. Unexpected errors are logged and hidden.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var perr *billing.ProviderError
	switch {
	case errors.Is(err, merchant.ErrInvalidShop):
		writeError(w, http.StatusBadRequest, "invalid_shop", err.Error())
	case errors.Is(err, plan.ErrInvalidPlan):
		writeError(w, http.StatusBadRequest, "invalid_plan", "Invalid plan type selected")
	case errors.As(err, &perr):
		h.log.WarnContext(r.Context(), "billing provider rejected request", logger.Error(err))
		msg := perr.Message
		if msg == "" {
			msg = "Billing provider unavailable"
		}
		writeError(w, http.StatusBadGateway, "provider_error", msg)
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		writeError(w, http.StatusForbidden, "no_active_subscription", err.Error())
	case errors.Is(err, subscription.ErrProductLimitReached):
		writeError(w, http.StatusForbidden, "product_limit_reached", err.Error())
	case errors.Is(err, subscription.ErrAlreadyPublished):
		writeError(w, http.StatusConflict, "already_published", err.Error())
	case errors.Is(err, subscription.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "request failed", logger.Error(err), slog.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
