package handlers

import (
	"encoding/json"

	"workshop-functions/internal/apperr"
)

// Result is the {statusCode, body} shape returned by directly invoked functions.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func NewResult(status int, v any) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return Result{StatusCode: 500, Body: `{"error":"encode result"}`}
	}
	return Result{StatusCode: status, Body: string(b)}
}

// ErrorResult reports err with status 500 regardless of its kind.
func ErrorResult(err error) Result {
	return NewResult(500, map[string]string{
		"error": err.Error(),
		"kind":  string(apperr.KindOf(err)),
	})
}
