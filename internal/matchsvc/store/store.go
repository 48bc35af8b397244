package store

import "errors"

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrPermissionDenied is returned when the acting identity is not listed
// among a document's owners. Ownership is stamped at creation time: the
// host owns the session document, each participant document is owned by
// its user plus the host (the host teardown cascade relies on this).
var ErrPermissionDenied = errors.New("permission denied")

func ownerAllowed(owners []string, actorID string) bool {
	for _, o := range owners {
		if o == actorID {
			return true
		}
	}
	return false
}
