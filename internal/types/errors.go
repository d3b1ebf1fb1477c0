package types

import "fmt"

// InvalidRequestError reports a TransactionRequest field that cannot be sent
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid transaction request: %s %s", e.Field, e.Reason)
}
