package issues

import "fmt"

// Kind classifies a failed issue operation.
type Kind int

const (
	// KindSearchFailed means the store could not answer a search.
	KindSearchFailed Kind = iota + 1
	// KindRequiredFieldMissing means a create lacked issue_title, issue_text or created_by.
	KindRequiredFieldMissing
	// KindMissingID means an update or delete was sent without _id.
	KindMissingID
	// KindNoUpdateFields means an update carried _id but nothing to change.
	KindNoUpdateFields
	// KindCouldNotUpdate covers unknown, malformed and out-of-project ids on update.
	KindCouldNotUpdate
	// KindCouldNotDelete covers unknown, malformed and out-of-project ids on delete.
	KindCouldNotDelete
)

var kindMessages = map[Kind]string{
	KindSearchFailed:         "search failed",
	KindRequiredFieldMissing: "required field(s) missing",
	KindMissingID:            "missing _id",
	KindNoUpdateFields:       "no update field(s) sent",
	KindCouldNotUpdate:       "could not update",
	KindCouldNotDelete:       "could not delete",
}

// String returns the client-facing message for k.
func (k Kind) String() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every Service operation that fails.
type Error struct {
	Kind Kind
	// ID echoes the _id the caller sent, if any.
	ID string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }
