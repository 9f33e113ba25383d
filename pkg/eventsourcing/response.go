package eventsourcing

import "fmt"

// AppError is the structured error surfaced to callers of a command or
// query handler: a stable code, a human message, an optional suggested
// remedy, and free-form details for debugging.
type AppError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Solution string            `json:"solution,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Solution != "" {
		return fmt.Sprintf("%s (code: %s). Solution: %s", e.Message, e.Code, e.Solution)
	}
	return fmt.Sprintf("%s (code: %s)", e.Message, e.Code)
}

// Response wraps the outcome of a command or query for callers that want a
// uniform success/error envelope instead of Go's (T, error) idiom. Nothing
// in this module constructs one; cmd/labourctl does not use it.
type Response[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *AppError `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful Response carrying data.
func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// NewErrorResponse creates an error Response with a full AppError.
func NewErrorResponse[T any](code, message, solution string, details map[string]string) Response[T] {
	return Response[T]{
		Success: false,
		Error: &AppError{
			Code:     code,
			Message:  message,
			Solution: solution,
			Details:  details,
		},
	}
}

// NewSimpleErrorResponse creates an error Response with just a code and message.
func NewSimpleErrorResponse[T any](code, message string) Response[T] {
	return NewErrorResponse[T](code, message, "", nil)
}

// AsError converts a failed Response into a Go error, or nil if successful.
func (r Response[T]) AsError() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("operation failed")
	}
	return r.Error
}
