package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so callers can tell user faults from operational ones.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindUpstream
	KindEmptyInput
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "PARSE_ERROR"
	case KindUpstream:
		return "UPSTREAM_ERROR"
	case KindEmptyInput:
		return "EMPTY_INPUT"
	case KindInference:
		return "INFERENCE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// UserFault reports whether the kind is caused by caller input.
func (k Kind) UserFault() bool {
	return k == KindParse || k == KindEmptyInput
}

// Error is the error type returned across component boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Status  int    // provider status for upstream failures
	Message string // provider payload or human readable detail
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports an upstream 404, e.g. an unknown video.
func (e *Error) NotFound() bool {
	return e.Kind == KindUpstream && e.Status == http.StatusNotFound
}

// ParseErr reports input that could not be parsed.
func ParseErr(op, msg string) error {
	return &Error{Kind: KindParse, Op: op, Message: msg}
}

// UpstreamErr reports a failed platform call with its HTTP status.
func UpstreamErr(op string, status int, msg string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Message: msg, Err: err}
}

// EmptyInputErr reports a request with nothing to process.
func EmptyInputErr(op, msg string) error {
	return &Error{Kind: KindEmptyInput, Op: op, Message: msg}
}

// InferenceErr wraps a model serving failure.
func InferenceErr(op string, err error) error {
	return &Error{Kind: KindInference, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrorInfo is the wire form of an error attached to a result.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// NewErrorInfo converts err into its wire form.
func NewErrorInfo(err error) *ErrorInfo {
	var e *Error
	if !errors.As(err, &e) {
		return &ErrorInfo{Code: KindUnknown.String(), Message: err.Error()}
	}
	info := &ErrorInfo{Code: e.Kind.String(), Message: e.Error(), Status: e.Status}
	if e.NotFound() {
		info.Code = "NOT_FOUND"
	}
	return info
}
