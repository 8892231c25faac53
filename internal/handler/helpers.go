package handler

import (
	"net/http"
	"strconv"

	"dealdesk/internal/httputil"
)

// PathParam extracts a path parameter, writing a 400 response when it
// is missing. The second return value reports success.
func PathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	return value, true
}

// PathParamInt64 extracts a numeric path parameter, writing a 400
// response when it is missing or not a valid integer.
func PathParamInt64(w http.ResponseWriter, r *http.Request, name, label string) (int64, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return 0, false
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, label+" must be an integer")
		return 0, false
	}
	return id, true
}
