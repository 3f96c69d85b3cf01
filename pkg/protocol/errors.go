package protocol

import "fmt"

// ValidationError reports caller input that cannot become a wire message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type EncodingError struct {
	Type MessageType
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("encode message: %v", e.Err)
	}
	return fmt.Sprintf("encode %s message: %v", e.Type, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

type DecodingError struct {
	Type MessageType
	Err  error
}

func (e *DecodingError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %s frame: %v", e.Type, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }
