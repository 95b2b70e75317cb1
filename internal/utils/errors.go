package utils

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AppError names the operation that failed, what it was doing, and why.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError wraps err with the failing operation. A nil err still yields an
// error so call sites can report conditions that have no underlying cause.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// StatusError reports a non-2xx answer from a downstream HTTP endpoint.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "endpoint returned " + e.Status
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CheckResponse drains a bounded amount of resp.Body so the connection can be
// reused and converts non-2xx codes into a *StatusError.
func CheckResponse(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.Status
		if status == "" {
			status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return &StatusError{StatusCode: resp.StatusCode, Status: status}
	}
	return nil
}
