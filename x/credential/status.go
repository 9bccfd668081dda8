package credential

import "strings"

// Status is the lifecycle state of an achievement.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	// StatusClaiming is Verified with a committed claim reservation.
	StatusClaiming Status = "claiming"
	StatusClaimed  Status = "claimed"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusVerified, StatusRejected},
	StatusRejected:  {StatusSubmitted},
	StatusVerified:  {StatusClaiming},
	StatusClaiming:  {StatusClaimed, StatusVerified},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusVerified, StatusRejected, StatusClaiming, StatusClaimed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusClaimed
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus normalizes user input into a Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// OneOf reports whether s equals any of the given statuses.
func (s Status) OneOf(statuses ...Status) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
