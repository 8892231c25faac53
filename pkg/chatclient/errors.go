package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors - use with errors.Is()
var (
	// ErrBusy is returned when a send is attempted while a previous
	// turn is still streaming. Turns are strictly sequential.
	ErrBusy = errors.New("a message is already streaming")

	// ErrRateLimited is returned when the server throttles session
	// creation. The server's detail text is preserved on the APIError.
	ErrRateLimited = errors.New("rate limited")

	// ErrLimitReached is returned when the anonymous message allowance
	// is exhausted. This is a terminal session state, not a transient
	// failure.
	ErrLimitReached = errors.New("message limit reached")

	// ErrNotFound is returned for unknown tokens and IDs.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a gate purchase costs
	// more than the available credit.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// APIError is a problem+json response from the server. Extras carries
// any top-level fields beyond the RFC 7807 ones (e.g. balanceCents on
// a 402).
type APIError struct {
	Status int
	Title  string
	Detail string
	Extras map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Title, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Title, e.Status)
}

// Is maps HTTP statuses onto the package sentinels so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrLimitReached:
		return e.Status == http.StatusForbidden
	case ErrInsufficientBalance:
		return e.Status == http.StatusPaymentRequired
	}
	return false
}

// parseAPIError builds an APIError from a problem+json body, falling
// back to the bare status when the body is not parseable.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status: status,
		Title:  http.StatusText(status),
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return apiErr
	}

	if title, ok := fields["title"].(string); ok {
		apiErr.Title = title
	}
	if detail, ok := fields["detail"].(string); ok {
		apiErr.Detail = detail
	}

	for k, v := range fields {
		switch k {
		case "type", "title", "status", "detail", "instance":
			continue
		}
		if apiErr.Extras == nil {
			apiErr.Extras = make(map[string]interface{})
		}
		apiErr.Extras[k] = v
	}

	return apiErr
}
