package crawler

import "errors"

// Error taxonomy for the crawl pipeline. Producers wrap these with fmt.Errorf("...: %w")
// and consumers classify with errors.Is.
var (
	// ErrPermissionDenied means robots.txt forbids the address for our client identity.
	ErrPermissionDenied = errors.New("permission denied by robots policy")
	// ErrNetwork covers transport failures and non-success HTTP statuses.
	ErrNetwork = errors.New("network error")
	// ErrMalformedPage means a required structural element was missing or unparsable.
	ErrMalformedPage = errors.New("malformed page")
	// ErrEnumeration means a search-results page could not be fetched or parsed.
	ErrEnumeration = errors.New("enumeration error")
	// ErrStorage means the persistence layer failed; it aborts the run.
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned by repositories when a lookup has no match.
	ErrNotFound = errors.New("not found")
)

// IsItemError reports whether err only abandons the current item. Storage failures
// never do, whatever else they wrap.
func IsItemError(err error) bool {
	if errors.Is(err, ErrStorage) {
		return false
	}
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrMalformedPage)
}

// ErrorKind returns a short label for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrMalformedPage):
		return "malformed_page"
	case errors.Is(err, ErrEnumeration):
		return "enumeration"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
