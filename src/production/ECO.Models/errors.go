package ecomodels

import (
	"errors"
	"fmt"
)

// ErrNoReadings is returned when a lookup finds an empty store
var ErrNoReadings = errors.New("no readings stored")

// ValidationError reports a missing or malformed input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidTopicError reports a subscription to a topic outside the fixed set
type InvalidTopicError struct {
	Topic string
}

func (e *InvalidTopicError) Error() string {
	return fmt.Sprintf("unknown topic %q", e.Topic)
}

// StoreError wraps a persistence failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError reports a failed push to a single subscriber
type DeliveryError struct {
	ConnID string
	Topic  Topic
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s on %s: %v", e.ConnID, e.Topic, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsInvalidTopic(err error) bool {
	var v *InvalidTopicError
	return errors.As(err, &v)
}
