// Package errors provides the error taxonomy for the analytics engine.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrMarketDataUnavailable  = errors.New("market data unavailable")
	ErrAlreadyExpired         = errors.New("option already expired")
	ErrConvergenceFailure     = errors.New("implied volatility did not converge")
	ErrUnderspecifiedStrategy = errors.New("strategy has no legs")
	ErrConfigInvalid          = errors.New("invalid configuration")
)

// ValidationError represents a rejected input value. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a market-data failure.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Unavailable reports that no usable spot price exists for symbol.
func Unavailable(symbol string, cause error) error {
	if cause == nil {
		return NewDataError("spot", symbol, "no current price", ErrMarketDataUnavailable)
	}
	return NewDataError("spot", symbol, "no current price", fmt.Errorf("%w: %v", ErrMarketDataUnavailable, cause))
}

// Kind returns a stable name for the taxonomy entry err belongs to.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrMarketDataUnavailable):
		return "market_data_unavailable"
	case errors.Is(err, ErrAlreadyExpired):
		return "already_expired"
	case errors.Is(err, ErrConvergenceFailure):
		return "convergence_failure"
	case errors.Is(err, ErrUnderspecifiedStrategy):
		return "underspecified_strategy"
	case errors.Is(err, ErrConfigInvalid):
		return "config_invalid"
	}
	return "internal"
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
