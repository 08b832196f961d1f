// Package http provides the HTTP client used for YouTube Data API requests
// and thumbnail downloads.
//
// The Client in this package handles:
//   - User-Agent headers
//   - JSON decoding
//   - Timeout handling
//
// Non-200 responses are returned as *StatusError so callers can map 401/403
// to an unavailable resolver and 404 to a missing track:
//
//	var se *http.StatusError
//	if errors.As(err, &se) && se.StatusCode == 403 {
//	    // quota exhausted or key rejected
//	}
package http
