package schema

import "fmt"

// KeyError is a single key validation failure.
type KeyError struct {
	Key    string
	Reason string
	Value  any
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key %q: %s", e.Key, e.Reason)
}

// AggregateError collects multiple key failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e.Errors))
	for _, err := range e.Errors {
		msg += "\n  " + err.Error()
	}
	return msg
}
