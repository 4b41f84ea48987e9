package classify

// ClassifiedError wraps an underlying failure with its category, a
// retryability flag, an optional numeric status code and an opaque
// context mapping describing the circumstance of the failed operation.
// A ClassifiedError is immutable once constructed; Classify returns
// pre-classified errors unchanged.
type ClassifiedError struct {
	Err        error
	Category   Category
	Retryable  bool
	StatusCode int
	Context    map[string]any
}

// NewClassifiedError constructs a ClassifiedError around err.
// The context map is copied so later mutation by the caller cannot
// leak into the error.
func NewClassifiedError(
	err error,
	category Category,
	retryable bool,
	context map[string]any,
) *ClassifiedError {
	var ctx map[string]any
	if len(context) > 0 {
		ctx = make(map[string]any, len(context))
		for k, v := range context {
			ctx[k] = v
		}
	}
	return &ClassifiedError{
		Err:       err,
		Category:  category,
		Retryable: retryable,
		Context:   ctx,
	}
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying failure to errors.Is / errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}
