package models

// legalTransitions encodes the Job State Machine graph. PENDING/PROCESSING
// self-loops model the no-op re-claim and attempt-count increment cases.
var legalTransitions = map[StoryStatus]map[StoryStatus]bool{
	StoryStatusPending: {
		StoryStatusProcessing: true,
		StoryStatusFailed:     true,
	},
	StoryStatusProcessing: {
		StoryStatusProcessing: true,
		StoryStatusCompleted:  true,
		StoryStatusFailed:     true,
	},
	StoryStatusCompleted: {},
	StoryStatusFailed:    {},
}

// StatusTransitionAllowed reports whether from->to is a legal edge of the
// job state machine. Any non-listed transition MUST be rejected by the
// Repository.
func StatusTransitionAllowed(from, to StoryStatus) bool {
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
