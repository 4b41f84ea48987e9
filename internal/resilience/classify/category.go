// Package classify assigns failures a semantic category and decides
// whether they are worth retrying.
//
// This package contains:
//   - Category: the closed set of failure categories
//   - ClassifiedError: a failure annotated with category, retryability and context
//   - Classify: message and status-code based classification
package classify

// Category is the semantic category of a failure.
type Category string

const (
	CategoryNetwork          Category = "network"
	CategorySelectorNotFound Category = "selector_not_found"
	CategoryBrowserCrash     Category = "browser_crash"
	CategoryTimeout          Category = "timeout"
	CategoryUpload           Category = "upload"
	CategoryParsing          Category = "parsing"
	CategoryAuthentication   Category = "authentication"
)

// Categories lists every category in classification priority order.
var Categories = []Category{
	CategoryNetwork,
	CategoryTimeout,
	CategoryBrowserCrash,
	CategorySelectorNotFound,
	CategoryUpload,
	CategoryParsing,
	CategoryAuthentication,
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}
