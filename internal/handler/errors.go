package handler

import (
	"errors"
	"net/http"

	"dealdesk/internal/domain"
	"dealdesk/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var limitErr *domain.LimitReachedError
	if errors.As(err, &limitErr) {
		httputil.RespondErrorWithExtras(w, http.StatusForbidden, limitErr.Error(),
			map[string]interface{}{"messagesRemaining": 0})
		return
	}

	var balanceErr *domain.InsufficientBalanceError
	if errors.As(err, &balanceErr) {
		httputil.RespondErrorWithExtras(w, http.StatusPaymentRequired, balanceErr.Error(),
			map[string]interface{}{
				"gate":         balanceErr.Gate,
				"priceCents":   balanceErr.PriceCents,
				"balanceCents": balanceErr.BalanceCents,
			})
		return
	}

	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		httputil.RespondError(w, http.StatusTooManyRequests, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
