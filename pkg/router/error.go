package router

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Error is an error that renders itself as the body of an error response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is encoded as {"code": <status>, "error": <message>}.
type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, msg string) JsonError {
	return JsonError{Code: code, Err: msg}
}

// StatusError returns the JsonError of code with its standard status text.
func StatusError(code int) JsonError {
	return NewJsonError(code, strings.ToLower(http.StatusText(code)))
}

func (e JsonError) StatusCode() int { return e.Code }

func (e JsonError) Error() string { return e.Err }

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}

func writeError(w http.ResponseWriter, e Error) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode())
	return e.Encode(w)
}
