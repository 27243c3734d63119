package bitrix24

import "errors"

// Argument validation failures. These are returned as Go errors before any
// network activity; every other failure travels as data in the Result.
var (
	ErrEmptyMethod    = errors.New("empty method")
	ErrTooManyParams  = errors.New("too many parameter slots, at most four are allowed")
	ErrInvalidCmd     = errors.New("invalid 'cmd' structure")
	ErrInvalidCommand = errors.New("invalid 'cmd' method description")
	ErrNestedBatch    = errors.New("batch call cannot contain batch methods")
)

// Result is a decoded API response. Remote errors appear under its "error"
// key; success payloads under "result".
type Result map[string]any

// ErrorCode returns the value of the result's "error" field, or "" when the
// result carries no error.
func (r Result) ErrorCode() string {
	code, _ := r["error"].(string)
	return code
}

// Params is one positional parameter slot of a Call. The remote API is
// sensitive to key ordering within the encoded body, which is why slots are
// positional. A slot is either a Plain mapping or a *Batch.
type Params interface {
	isParams()
}

// Plain is a generic key→value parameter mapping. Nested mappings and
// arrays are flattened into bracketed key paths when encoded.
type Plain map[string]any

func (Plain) isParams() {}

// Command describes one sub-call of a batch: a method name and its ordered
// parameter mappings.
type Command struct {
	Method string
	Params []map[string]any
}

// Batch is the batch-shaped parameter slot: a command map keyed by caller
// chosen request ids plus the halt flag. When Halt is true the server aborts
// the remaining sub-calls after the first failure.
//
// The zero Cmd map marks the batch as structurally invalid for CallBatch.
// The prepared form is populated once per Batch value, so a retried call
// never re-prepares an already-prepared batch.
type Batch struct {
	Halt bool
	Cmd  map[string]Command

	prepared map[string]string
}

func (*Batch) isParams() {}
