// Package mcp implements Miller's Model Context Protocol server: the
// JSON-RPC tool surface over the indexing-and-query engine.
package mcp

import (
	"fmt"

	merrors "github.com/ziongh/miller/internal/errors"
)

// JSON-RPC error codes used by the tool surface.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ProtocolError is a JSON-RPC error with code and message.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds a -32602 error.
func NewInvalidParamsError(message string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts engine errors to protocol errors. ValidationError
// surfaces as invalid params; everything else becomes an internal error
// with the engine message preserved.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if merrors.IsKind(err, merrors.KindValidation) {
		return &ProtocolError{Code: ErrCodeInvalidParams, Message: err.Error()}
	}
	return &ProtocolError{Code: ErrCodeInternalError, Message: err.Error()}
}
