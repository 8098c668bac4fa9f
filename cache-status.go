package presscache

import "net/http"

// ServeState is the terminal state of the serve path for one request.
type ServeState string

const (
	// Classifier excluded the request; the pipeline runs untouched.
	StateDisabled ServeState = "disabled"

	// A fresh entry was served and the pipeline short-circuited.
	StateHit ServeState = "hit"

	// An entry existed but its age reached the TTL; both artifacts
	// were deleted and the pipeline ran with capture armed.
	StateExpired ServeState = "expired"

	// No entry existed; the pipeline ran with capture armed.
	StateMiss ServeState = "miss"
)

// CacheStatus renders the Cache-Status response header using the RFC 9211
// grammar, e.g. "Press-Cache; hit" or "Press-Cache; fwd=bypass; detail=session".
type CacheStatus struct {
	State  ServeState
	Detail string
}

func (cs CacheStatus) String() string {
	status := "Press-Cache; "
	switch cs.State {
	case StateHit:
		status += "hit"
	case StateExpired:
		status += "fwd=stale"
	case StateDisabled:
		status += "fwd=bypass"
	default:
		status += "fwd=miss"
	}
	if cs.Detail != "" {
		status += "; detail=" + cs.Detail
	}
	return status
}

func setCacheStatus(w http.ResponseWriter, cs CacheStatus) {
	w.Header().Set("Cache-Status", cs.String())
}
