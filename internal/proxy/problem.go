package proxy

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// rateLimitBody is the 429 response shape: JSON {error, message,
// retryAfter?}.
type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeRateLimitResponse(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rateLimitBody{
		Error:      "Too Many Requests",
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	})
}

// problemBody is an RFC 7807 application/problem+json body with the
// timeout/timestamp extensions this gateway's timeout handler emits.
type problemBody struct {
	Type      string  `json:"type"`
	Status    int     `json:"status"`
	Detail    string  `json:"detail"`
	Timeout   float64 `json:"timeout,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

func writeTimeoutResponse(w http.ResponseWriter, timeout time.Duration) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusGatewayTimeout)
	_ = json.NewEncoder(w).Encode(problemBody{
		Type:      "https://httpstatuses.com/504",
		Status:    http.StatusGatewayTimeout,
		Detail:    "the upstream did not respond within " + timeout.String(),
		Timeout:   timeout.Seconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// errorBody is the generic problem+json body used for non-timeout
// failures (no destinations, route not found, upstream errors).
type errorBody struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func writeErrorResponse(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Type:   httpStatusURL(status),
		Status: status,
		Detail: detail,
		Code:   code,
	})
}

func httpStatusURL(status int) string {
	return "https://httpstatuses.com/" + strconv.Itoa(status)
}
