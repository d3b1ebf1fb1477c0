package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrClientClosed is returned by calls made after Close
	ErrClientClosed = errors.New("rpc transport is closed")

	// ErrSubscriptionsNotSupported is returned by Subscribe on HTTP transports
	ErrSubscriptionsNotSupported = errors.New("transport does not support subscriptions")
)

// JSON-RPC error codes the transport treats specially
const (
	CodeExecutionReverted = 3
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
	CodeServerError       = -32000
	CodeResourceNotFound  = -32001
	CodeLimitExceeded     = -32005
	CodeMethodNotFound    = -32601
)

// RPCError is an error object returned by the node
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    interface{}
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Reverted reports whether the node rejected the request because execution reverted
func (e *RPCError) Reverted() bool {
	if e.Code == CodeExecutionReverted {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "revert")
}

// RevertData returns the hex revert payload carried in Data, if any
func (e *RPCError) RevertData() string {
	s, ok := e.Data.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return ""
	}
	return s
}

// HTTPStatusError is a non-200 response from an HTTP endpoint
type HTTPStatusError struct {
	Method     string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: http %s: %s", e.Method, e.Status, e.Body)
}

// normalizeError converts go-ethereum rpc errors into RPCError / HTTPStatusError.
func normalizeError(method string, err error) error {
	if err == nil {
		return nil
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &HTTPStatusError{
			Method:     method,
			StatusCode: httpErr.StatusCode,
			Status:     httpErr.Status,
			Body:       string(httpErr.Body),
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		out := &RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			out.Data = dataErr.ErrorData()
		}
		return out
	}
	return err
}

// retryable reports whether err is worth retrying. Errors the node returns for a
// well-formed request are deterministic and never retried.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClientClosed) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Reverted() {
			return false
		}
		switch rpcErr.Code {
		case CodeLimitExceeded, CodeInternal:
			return true
		}
		return false
	}

	// Transport level failures: connection refused, reset, EOF, decode errors.
	return true
}
