// Package errorkinds implements the closed error taxonomy of spec.md §7
// as concrete Go types. Every kind carries a stable Code for callers that
// switch on `errors.As`, a human-readable message, and — where relevant —
// the offending identifier (path, collection, model).
//
// Pattern grounded on the teacher's internal/errors package: a typed
// struct per error kind, a constructor, Error() and Unwrap().
package errorkinds

import (
	"fmt"
	"time"
)

// Code is the stable, user-visible error code (spec.md §7).
type Code string

const (
	CodeIoFailure              Code = "io_failure"
	CodeParseFailure           Code = "parse_failure"
	CodeDimensionMismatch      Code = "dimension_mismatch"
	CodeCollectionIncompatible Code = "collection_incompatible"
	CodeServiceUnavailable     Code = "service_unavailable"
	CodeInvalidArgument        Code = "invalid_argument"
	CodeCancelled              Code = "cancelled"
	CodeConflict               Code = "conflict"
)

// base carries the fields every kind shares.
type base struct {
	Code       Code
	Message    string
	Identifier string // path, collection, or model name, when relevant
	Underlying error
	Timestamp  time.Time
}

func (b base) Error() string {
	if b.Identifier != "" {
		return fmt.Sprintf("%s: %s (%s)", b.Code, b.Message, b.Identifier)
	}
	return fmt.Sprintf("%s: %s", b.Code, b.Message)
}

func (b base) Unwrap() error { return b.Underlying }

// IoFailure is a filesystem or network failure. Always includes a path or
// endpoint. Transient IoFailure on a per-file read must not abort a bulk
// reindex (spec.md §7 propagation policy); it is recorded, not fatal by
// itself.
type IoFailure struct{ base }

func NewIoFailure(endpointOrPath string, err error) *IoFailure {
	return &IoFailure{base{Code: CodeIoFailure, Message: "io failure", Identifier: endpointOrPath, Underlying: err, Timestamp: time.Now()}}
}

// ParseFailure marks a file that partially parsed. Never fatal; it is
// always recovered locally and recorded in the file's diagnostics list.
type ParseFailure struct {
	base
	Line   int
	Column int
}

func NewParseFailure(path string, line, col int, err error) *ParseFailure {
	return &ParseFailure{
		base:   base{Code: CodeParseFailure, Message: "parse failure", Identifier: path, Underlying: err, Timestamp: time.Now()},
		Line:   line,
		Column: col,
	}
}

// DimensionMismatch is fatal for the embedding call that produced it. It
// is never silently truncated.
type DimensionMismatch struct {
	base
	Model    string
	Expected int
	Got      int
}

func NewDimensionMismatch(model string, expected, got int) *DimensionMismatch {
	return &DimensionMismatch{
		base:     base{Code: CodeDimensionMismatch, Message: fmt.Sprintf("expected dimensionality %d, got %d", expected, got), Identifier: model, Timestamp: time.Now()},
		Model:    model,
		Expected: expected,
		Got:      got,
	}
}

// CollectionIncompatible fires when a Collection's fingerprint disagrees
// with the requested model. Fatal until resolved by explicit reindex or
// mode switch.
type CollectionIncompatible struct {
	base
	Collection string
	WantModel  string
	HaveModel  string
}

func NewCollectionIncompatible(collection, wantModel, haveModel string) *CollectionIncompatible {
	return &CollectionIncompatible{
		base:       base{Code: CodeCollectionIncompatible, Message: fmt.Sprintf("fingerprint mismatch: want model %q, collection is %q", wantModel, haveModel), Identifier: collection, Timestamp: time.Now()},
		Collection: collection,
		WantModel:  wantModel,
		HaveModel:  haveModel,
	}
}

// ServiceUnavailable is fatal for embedding calls, but downgraded to
// identity-order for the reranker per spec.md §4.5/§7.
type ServiceUnavailable struct{ base }

func NewServiceUnavailable(endpoint string, err error) *ServiceUnavailable {
	return &ServiceUnavailable{base{Code: CodeServiceUnavailable, Message: "service unavailable", Identifier: endpoint, Underlying: err, Timestamp: time.Now()}}
}

// InvalidArgument is a caller-side schema violation. Never retried.
type InvalidArgument struct{ base }

func NewInvalidArgument(field, reason string) *InvalidArgument {
	return &InvalidArgument{base{Code: CodeInvalidArgument, Message: reason, Identifier: field, Timestamp: time.Now()}}
}

// Cancelled marks a deadline exceeded or an external cancel.
type Cancelled struct{ base }

func NewCancelled(op string, err error) *Cancelled {
	return &Cancelled{base{Code: CodeCancelled, Message: "cancelled", Identifier: op, Underlying: err, Timestamp: time.Now()}}
}

// Conflict marks two writers racing on the same collection. Callers
// retry once, then surface it.
type Conflict struct{ base }

func NewConflict(resource string, err error) *Conflict {
	return &Conflict{base{Code: CodeConflict, Message: "conflicting write", Identifier: resource, Underlying: err, Timestamp: time.Now()}}
}
