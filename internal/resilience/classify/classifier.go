package classify

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Keyword families checked in priority order. First match wins.
var (
	networkKeywords = []string{
		"network", "connection", "timeout", "socket",
		"dns", "reset", "refused", "fetch", "request failed",
	}
	timeoutKeywords = []string{
		"timed out", "deadline exceeded", "etimedout",
	}
	browserKeywords = []string{
		"browser", "page", "target closed",
	}
	selectorKeywords = []string{
		"selector", "element not found", "waiting for selector",
	}
	uploadKeywords = []string{
		"upload", "drive", "storage",
	}
	parsingKeywords = []string{
		"parse", "json", "unmarshal",
	}
	authKeywords = []string{
		"auth", "permission", "unauthorized",
	}

	// Failures shaped like bad user input are never worth retrying.
	nonRetryableKeywords = []string{
		"validation", "invalid", "bad request", "unauthorized",
		"forbidden", "not found", "conflict",
	}
)

// Classify maps a failure to exactly one category and decides whether it
// is intrinsically retryable. An already classified error is returned
// verbatim, so classification is idempotent. Unmatched failures default
// to CategoryNetwork.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var pre *ClassifiedError
	if errors.As(err, &pre) {
		return pre
	}

	// Cancellation is a deliberate signal from the caller, never retried.
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Err: err, Category: CategoryNetwork, Retryable: false}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return classifyGRPC(err, st.Code())
	}

	category := categoryForMessage(err.Error())
	return &ClassifiedError{
		Err:       err,
		Category:  category,
		Retryable: retryableFor(category, err.Error()),
	}
}

// CategoryOf is a convenience for callers that only need the category.
func CategoryOf(err error) Category {
	return Classify(err).Category
}

// IsRetryable reports whether the failure should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

func categoryForMessage(msg string) Category {
	lower := strings.ToLower(msg)

	if containsAny(lower, networkKeywords) {
		return CategoryNetwork
	}
	if containsAny(lower, timeoutKeywords) {
		return CategoryTimeout
	}
	if containsAny(lower, browserKeywords) {
		return CategoryBrowserCrash
	}
	if containsAny(lower, selectorKeywords) {
		return CategorySelectorNotFound
	}
	if containsAny(lower, uploadKeywords) {
		return CategoryUpload
	}
	if containsAny(lower, parsingKeywords) {
		return CategoryParsing
	}
	if containsAny(lower, authKeywords) {
		return CategoryAuthentication
	}

	return CategoryNetwork
}

func retryableFor(category Category, msg string) bool {
	switch category {
	case CategoryNetwork, CategoryTimeout:
		return true
	case CategoryAuthentication, CategoryParsing:
		return false
	}

	if containsAny(strings.ToLower(msg), nonRetryableKeywords) {
		return false
	}

	return true
}

// classifyGRPC maps gRPC status codes onto the closed category set.
func classifyGRPC(err error, code codes.Code) *ClassifiedError {
	ce := &ClassifiedError{Err: err, StatusCode: int(code)}

	switch code {
	case codes.Unavailable, codes.Aborted, codes.ResourceExhausted:
		ce.Category = CategoryNetwork
		ce.Retryable = true
	case codes.DeadlineExceeded:
		ce.Category = CategoryTimeout
		ce.Retryable = true
	case codes.Unauthenticated, codes.PermissionDenied:
		ce.Category = CategoryAuthentication
		ce.Retryable = false
	case codes.InvalidArgument, codes.DataLoss:
		ce.Category = CategoryParsing
		ce.Retryable = false
	case codes.Canceled:
		ce.Category = CategoryNetwork
		ce.Retryable = false
	default:
		ce.Category = CategoryNetwork
		ce.Retryable = retryableFor(CategoryNetwork, err.Error())
	}

	return ce
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
