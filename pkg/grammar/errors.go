package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyStream is returned when a required token is missing.
var ErrEmptyStream = errors.New("token stream is empty")

// ErrValueType is returned by Set when the value does not fit the slot.
var ErrValueType = errors.New("value type does not match")

// ErrAttached is returned by Set when the node already has a parent.
var ErrAttached = errors.New("node is already attached")

// MissingFieldError reports a mandatory token that was not present: the
// prefix of NODE_SPEC, or the value following an option keyword.
type MissingFieldError struct {
	Segment Kind
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Segment, e.Field, ErrEmptyStream)
}

func (e *MissingFieldError) Unwrap() error { return ErrEmptyStream }

// InvalidPrefixError reports a prefix rejected by the CIDR validator.
type InvalidPrefixError struct {
	Prefix string
	Reason string
	Err    error
}

func (e *InvalidPrefixError) Error() string {
	return fmt.Sprintf("prefix (%s) did not pass validation: %s", e.Prefix, e.Reason)
}

func (e *InvalidPrefixError) Unwrap() error { return e.Err }

// NameNotFoundError is returned by field/child access with an unknown name.
type NameNotFoundError struct {
	Segment Kind
	Name    string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("%s has no field or child named %q", e.Segment, e.Name)
}

// TrailingTokensError reports tokens no segment claimed.
type TrailingTokensError struct {
	Tokens []string
}

func (e *TrailingTokensError) Error() string {
	return fmt.Sprintf("unrecognized trailing tokens: %s", strings.Join(e.Tokens, " "))
}

// DuplicateKeywordError is returned under DuplicateReject when an option
// keyword appears twice in one segment.
type DuplicateKeywordError struct {
	Segment Kind
	Keyword string
}

func (e *DuplicateKeywordError) Error() string {
	return fmt.Sprintf("%s: option %q given more than once", e.Segment, e.Keyword)
}

// LineError attaches an input line number to a parse error.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ErrorKind names the class of a parse error, for metrics and API replies.
func ErrorKind(err error) string {
	var (
		missing   *MissingFieldError
		prefix    *InvalidPrefixError
		notFound  *NameNotFoundError
		trailing  *TrailingTokensError
		duplicate *DuplicateKeywordError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &prefix):
		return "invalid_prefix"
	case errors.As(err, &missing), errors.Is(err, ErrEmptyStream):
		return "empty_stream"
	case errors.As(err, &trailing):
		return "trailing_tokens"
	case errors.As(err, &duplicate):
		return "duplicate_keyword"
	case errors.As(err, &notFound):
		return "name_not_found"
	default:
		return "other"
	}
}
