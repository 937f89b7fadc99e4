// Package faults defines the public error taxonomy of the service. Every
// failure that crosses the API boundary is expressed as a Fault carrying
// a stable code, a short title, request-specific detail and a remediation
// tip. Raw native-library messages and stack traces never leave the
// process.
package faults

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code identifies a class of failure in the public taxonomy.
type Code string

// The full taxonomy. Codes are part of the wire contract and must not be
// renamed.
const (
	CodeInputInvalid         Code = "INPUT.INVALID"
	CodeInputMissingRequired Code = "INPUT.MISSING_REQUIRED"
	CodeInputInvalidFormat   Code = "INPUT.INVALID_FORMAT"
	CodeBodiesUnsupported    Code = "BODIES.UNSUPPORTED"
	CodeSystemIncompatible   Code = "SYSTEM.INCOMPATIBLE"
	CodeAyanamshaRequired    Code = "AYANAMSHA.REQUIRED"
	CodeAyanamshaUnsupported Code = "AYANAMSHA.UNSUPPORTED"
	CodeRangeOutside         Code = "RANGE.EPHEMERIS_OUTSIDE"
	CodeKernelsNotAvailable  Code = "KERNELS.NOT_AVAILABLE"
	CodeKernelsCorruption    Code = "KERNELS.CORRUPTION"
	CodeTimeResolutionFailed Code = "TIME.RESOLUTION_FAILED"
	CodeRateLimited          Code = "RATE.LIMITED"
	CodeOverloaded           Code = "SERVICE.OVERLOADED"
	CodeCompute              Code = "COMPUTE.EPHEMERIS_ERROR"
	CodeInternal             Code = "SERVICE.INTERNAL"
)

type codeInfo struct {
	title  string
	tip    string
	status int
}

var codeTable = map[Code]codeInfo{
	CodeInputInvalid:         {"Invalid input", "Consult the request schema", http.StatusBadRequest},
	CodeInputMissingRequired: {"Missing required field", "Consult the request schema", http.StatusBadRequest},
	CodeInputInvalidFormat:   {"Invalid field format", "Consult the request schema", http.StatusBadRequest},
	CodeBodiesUnsupported:    {"Unsupported body", "Use the supported body list", http.StatusBadRequest},
	CodeSystemIncompatible:   {"Incompatible system options", "Remove or add the ayanamsha to match the requested system", http.StatusBadRequest},
	CodeAyanamshaRequired:    {"Ayanamsha required", "Sidereal requests must carry an ayanamsha id", http.StatusBadRequest},
	CodeAyanamshaUnsupported: {"Unknown ayanamsha", "Use an id from the ayanamsha registry", http.StatusBadRequest},
	CodeRangeOutside:         {"Epoch outside ephemeris coverage", "Use a supported date range or enable the extended bundle", http.StatusBadRequest},
	CodeKernelsNotAvailable:  {"Ephemeris kernels not available", "Retry; report if persistent", http.StatusInternalServerError},
	CodeKernelsCorruption:    {"Ephemeris kernel corruption", "Retry; report if persistent", http.StatusInternalServerError},
	CodeTimeResolutionFailed: {"Time resolution failed", "Provide an explicit zone or offset, or use the as_entered profile", http.StatusBadRequest},
	CodeRateLimited:          {"Rate limit exceeded", "Retry after the provided number of seconds", http.StatusTooManyRequests},
	CodeOverloaded:           {"Service overloaded", "Retry with backoff", http.StatusServiceUnavailable},
	CodeCompute:              {"Ephemeris computation failed", "Retry; report if persistent", http.StatusInternalServerError},
	CodeInternal:             {"Internal error", "Retry; report if persistent", http.StatusInternalServerError},
}

// Fault is the user-visible error payload.
type Fault struct {
	Code   Code   `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Tip    string `json:"tip"`

	// RetryAfter is surfaced via the Retry-After header, not the body.
	RetryAfter int `json:"-"`
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

// New builds a Fault for the given code, filling title and tip from the
// taxonomy table.
func New(code Code, detail string) *Fault {
	info, ok := codeTable[code]
	if !ok {
		info = codeTable[CodeInternal]
		code = CodeInternal
	}
	return &Fault{Code: code, Title: info.title, Detail: detail, Tip: info.tip}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...interface{}) *Fault {
	return New(code, fmt.Sprintf(format, args...))
}

// HTTPStatus returns the HTTP status for a taxonomy code.
func HTTPStatus(code Code) int {
	if info, ok := codeTable[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// As unwraps err looking for a Fault.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// From coerces any error into a Fault. Non-taxonomy errors collapse into
// SERVICE.INTERNAL with a generic detail so internals never leak.
func From(err error) *Fault {
	if f, ok := As(err); ok {
		return f
	}
	return New(CodeInternal, "an internal error occurred")
}
