package tools

import (
	"errors"
	"strconv"

	"github.com/gzhole/shopbot/internal/store"
)

var (
	ErrUnknownTool        = errors.New("unknown tool")
	ErrMalformedArguments = errors.New("malformed tool arguments")
	ErrMissingArgument    = errors.New("missing argument")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Kind classifies a failed tool result.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindDenied     Kind = "denied"
	KindUpstream   Kind = "upstream"
	KindInternal   Kind = "internal"
)

type (
	Product        = store.Product
	BasketSnapshot = store.Basket
)

// Request is a tool call after its JSON arguments have been decoded.
type Request struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// PendingConfirmation is an action held back because the product name
// matched the best candidate with low confidence.
type PendingConfirmation struct {
	CandidateAction Request `json:"candidateAction"`
	MatchScore      float64 `json:"matchScore"`
	Candidate       Product `json:"candidate"`
}

// Result is the outcome of one tool invocation. Failures are data: Error
// holds a user-safe message and Kind its class.
type Result struct {
	Data     any                  `json:"data,omitempty"`
	Error    string               `json:"error,omitempty"`
	Kind     Kind                 `json:"kind,omitempty"`
	Category string               `json:"category,omitempty"`
	Pending  *PendingConfirmation `json:"pending,omitempty"`
}

func (r Result) Failed() bool { return r.Kind != KindNone }

func failure(kind Kind, msg string) Result {
	return Result{Kind: kind, Error: msg}
}

// Identity is the authenticated caller a tool acts for.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

// Key is the session key of the identity.
func (id Identity) Key() string {
	return strconv.FormatInt(id.UserID, 10)
}
