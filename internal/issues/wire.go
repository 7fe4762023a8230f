package issues

import "errors"

// Wire bodies shared by the HTTP and MCP adapters. Failures never map to a
// transport-level error; they are distinguished by body shape only.
type (
	// SearchFailureBody reports a failed search.
	SearchFailureBody struct {
		Confirmation string `json:"confirmation"`
		Message      string `json:"message"`
	}
	// ErrorBody reports any other failed operation.
	ErrorBody struct {
		Error string `json:"error"`
		ID    string `json:"_id,omitempty"`
	}
	// ResultBody reports a successful update or delete.
	ResultBody struct {
		Result string `json:"result"`
		ID     string `json:"_id"`
	}
)

// Success messages for ResultBody.
const (
	ResultUpdated = "successfully updated"
	ResultDeleted = "successfully deleted"
)

// FailureBody flattens err into its wire body and returns the failure kind.
// Errors that are not *Error are reported as search failures.
func FailureBody(err error) (any, Kind) {
	var ie *Error
	if !errors.As(err, &ie) {
		ie = &Error{Kind: KindSearchFailed, Err: err}
	}

	if ie.Kind == KindSearchFailed {
		msg := ie.Kind.String()
		if ie.Err != nil {
			msg = ie.Err.Error()
		}
		return SearchFailureBody{Confirmation: ie.Kind.String(), Message: msg}, ie.Kind
	}
	return ErrorBody{Error: ie.Kind.String(), ID: ie.ID}, ie.Kind
}
