package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnauthorized means the server rejected the bearer token; the token has
// already been expired on the TokenSource when this is returned.
var ErrUnauthorized = errors.New("session expired, please log in again")

// Error is a non-2xx response. Detail carries the server's "detail" field
// verbatim so it can be shown to the user as-is.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.Status)
}

// NetworkError wraps transport failures (connection refused, timeouts).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func newError(status int, body []byte) *Error {
	return &Error{Status: status, Detail: errorDetail(status, body)}
}

// errorDetail reads "detail" as either a string or a list of validation
// errors ({"msg": ...}).
func errorDetail(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		detail := gjson.GetBytes(body, "detail")
		switch {
		case detail.Type == gjson.String && detail.String() != "":
			return detail.String()
		case detail.IsArray():
			var msgs []string
			for _, item := range detail.Array() {
				if msg := item.Get("msg").String(); msg != "" {
					msgs = append(msgs, msg)
				} else if item.Type == gjson.String {
					msgs = append(msgs, item.String())
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		case detail.IsObject():
			if msg := detail.Get("message").String(); msg != "" {
				return msg
			}
		}
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return "unknown error: " + strings.ToLower(text)
	}
	return "unknown error"
}

// MessageResult is the body of a successful mutating call.
type MessageResult struct {
	Message string
	Success bool
}

func parseMessage(body []byte) *MessageResult {
	res := &MessageResult{Message: "operation succeeded", Success: true}
	if !gjson.ValidBytes(body) {
		return res
	}
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		res.Message = msg
	}
	if s := gjson.GetBytes(body, "success"); s.Exists() {
		res.Success = s.Bool()
	}
	return res
}

// StatusCode extracts the HTTP status from an *Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
