package types

import "fmt"

// CustomError is an error already shaped for the JSON error envelope
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Cause   error  `json:"-"`
}

func NewError(code int, errorType, message string) *CustomError {
	return &CustomError{Code: code, Message: message, Type: errorType}
}

// WrapError keeps err reachable through errors.Is and errors.As
func WrapError(code int, errorType string, err error) *CustomError {
	return &CustomError{Code: code, Message: err.Error(), Type: errorType, Cause: err}
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

func (e *CustomError) Unwrap() error {
	return e.Cause
}
