package booking

import "github.com/noah-isme/backend-maplefresh/internal/repo"

var transitions = map[repo.BookingStatus][]repo.BookingStatus{
	repo.BookingStatusPending: {
		repo.BookingStatusConfirmed, repo.BookingStatusInProgress,
		repo.BookingStatusCompleted, repo.BookingStatusCancelled,
	},
	repo.BookingStatusConfirmed: {
		repo.BookingStatusInProgress, repo.BookingStatusCompleted, repo.BookingStatusCancelled,
	},
	repo.BookingStatusInProgress: {
		repo.BookingStatusCompleted, repo.BookingStatusCancelled,
	},
}

// CanTransition reports whether a booking may move from one status to another.
// Staying on the same status is always allowed; completed and cancelled are final.
func CanTransition(from, to repo.BookingStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status change is possible.
func Terminal(status repo.BookingStatus) bool {
	return status == repo.BookingStatusCompleted || status == repo.BookingStatusCancelled
}
