package cognito

// SRPState is the position of one SRP exchange in its state machine.
// Transitions are checked by [ValidTransition]; an exchange that reaches
// [StateFailed] or [StateAuthenticated] is finished and cannot be reused.
//
// The zero value ("") is not a valid state; exchanges start in [StateInit].
type SRPState string

const (
	// StateInit is a fresh exchange: the client ephemeral pair (a, A) has
	// been generated but nothing has been sent.
	StateInit SRPState = "INIT"

	// StateChallengeIssued means A was submitted and the provider answered
	// with the PASSWORD_VERIFIER challenge (B, salt, secret block).
	StateChallengeIssued SRPState = "CHALLENGE_ISSUED"

	// StateClaimComputed means the session key and the password claim
	// signature have been derived and are ready to submit.
	StateClaimComputed SRPState = "CLAIM_COMPUTED"

	// StateAuthenticated means the provider accepted the claim and
	// returned tokens. Terminal.
	StateAuthenticated SRPState = "AUTHENTICATED"

	// StateFailed means the exchange was rejected or could not continue.
	// Terminal.
	StateFailed SRPState = "FAILED"
)

// String returns the string representation of the state.
func (s SRPState) String() string {
	return string(s)
}

// Valid reports whether s is one of the recognized states.
func (s SRPState) Valid() bool {
	switch s {
	case StateInit, StateChallengeIssued, StateClaimComputed,
		StateAuthenticated, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends the exchange.
func (s SRPState) IsTerminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// validTransitions is the SRP transition matrix:
//
//	Init            → ChallengeIssued, Failed
//	ChallengeIssued → ClaimComputed, Failed
//	ClaimComputed   → Authenticated, Failed
//	Authenticated   → (none)
//	Failed          → (none)
var validTransitions = map[SRPState][]SRPState{
	StateInit:            {StateChallengeIssued, StateFailed},
	StateChallengeIssued: {StateClaimComputed, StateFailed},
	StateClaimComputed:   {StateAuthenticated, StateFailed},
}

// ValidTransition reports whether an exchange may move from one state to
// the other. Same-state transitions are always rejected.
func ValidTransition(from, to SRPState) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
