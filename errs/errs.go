package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a resolution failure.
type Kind int

const (
	// KindUnknown is reported for errors that did not originate in this module.
	KindUnknown Kind = iota
	// KindInput indicates a missing or unparseable caller parameter.
	KindInput
	// KindInvalidLink indicates a link that is neither a short link nor a platform link.
	KindInvalidLink
	// KindRedirect indicates a short link whose redirect carried no target.
	KindRedirect
	// KindMissingIdentifier indicates a canonical link without a BV identifier.
	KindMissingIdentifier
	// KindUpstreamHTTP indicates a non-success response (or transport failure) from a platform endpoint.
	KindUpstreamHTTP
	// KindResponseShape indicates a platform response body lacking expected fields.
	KindResponseShape
)

var kindCodes = map[Kind]string{
	KindUnknown:           "UNKNOWN",
	KindInput:             "INPUT",
	KindInvalidLink:       "INVALID_LINK",
	KindRedirect:          "REDIRECT",
	KindMissingIdentifier: "MISSING_IDENTIFIER",
	KindUpstreamHTTP:      "UPSTREAM_HTTP",
	KindResponseShape:     "RESPONSE_SHAPE",
}

// Code returns the machine-readable code of the kind.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

func (k Kind) String() string { return k.Code() }

// Sentinels usable with errors.Is. Every *Error matches the sentinel of its kind.
var (
	// ErrInput indicates a missing or unparseable caller parameter.
	ErrInput = errors.New("invalid input")
	// ErrInvalidLink indicates the link is not a supported platform or short link.
	ErrInvalidLink = errors.New("invalid link")
	// ErrRedirect indicates the short link could not be expanded.
	ErrRedirect = errors.New("redirect target missing")
	// ErrMissingIdentifier indicates no BV identifier in the link.
	ErrMissingIdentifier = errors.New("missing video identifier")
	// ErrUpstreamHTTP indicates a failed call to a platform endpoint.
	ErrUpstreamHTTP = errors.New("upstream http error")
	// ErrResponseShape indicates an unexpected platform response body.
	ErrResponseShape = errors.New("unexpected response shape")
)

var kindSentinels = map[Kind]error{
	KindInput:             ErrInput,
	KindInvalidLink:       ErrInvalidLink,
	KindRedirect:          ErrRedirect,
	KindMissingIdentifier: ErrMissingIdentifier,
	KindUpstreamHTTP:      ErrUpstreamHTTP,
	KindResponseShape:     ErrResponseShape,
}

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageInput    Stage = "input"
	StageClassify Stage = "classify"
	StageExpand   Stage = "expand"
	StageExtract  Stage = "extract"
	StagePageList Stage = "pagelist"
	StageKeys     Stage = "wbi_keys"
	StageSign     Stage = "sign"
	StagePlayURL  Stage = "playurl"
)

// Error is the structured error returned by every pipeline stage.
type Error struct {
	Kind    Kind   `json:"-"`
	Stage   Stage  `json:"stage,omitempty"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`

	timeout bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(string(e.Stage))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Kind == KindUpstreamHTTP && e.Status > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// Timeout reports whether the error was caused by an expired deadline.
func (e *Error) Timeout() bool { return e.timeout }

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Code  string `json:"code"`
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Code:  e.Kind.Code(),
		Error: e.Error(),
	})
}

// New creates an Error of the given kind.
func New(kind Kind, stage Stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, stage Stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: cause}
}

// Upstream creates a KindUpstreamHTTP error for a non-success status.
func Upstream(stage Stage, status int, message string) *Error {
	return &Error{Kind: KindUpstreamHTTP, Stage: stage, Status: status, Message: message}
}

// Transport creates a KindUpstreamHTTP error for a failed round trip.
// timeout marks deadline expiry, which is reported like a non-success response.
func Transport(stage Stage, message string, cause error, timeout bool) *Error {
	return &Error{Kind: KindUpstreamHTTP, Stage: stage, Message: message, Err: cause, timeout: timeout}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout returns true if the error is an upstream timeout.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.timeout
	}
	return false
}

// HTTPStatus maps err to the status the HTTP shell answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput, KindInvalidLink, KindRedirect, KindMissingIdentifier:
		return http.StatusBadRequest
	case KindUpstreamHTTP:
		if IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindResponseShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
