package oauthflow

// FlowState is a step of the interactive OAuth flow.
type FlowState string

const (
	StateIdle                 FlowState = "IDLE"
	StateAwaitingProviderURL  FlowState = "AWAITING_PROVIDER_URL"
	StateAwaitingUserRedirect FlowState = "AWAITING_USER_REDIRECT"
	StateExchangingCode       FlowState = "EXCHANGING_CODE"
	StateComplete             FlowState = "COMPLETE"
	StateFailed               FlowState = "FAILED"
)

// transitions lists the legal next states. COMPLETE and FAILED are terminal;
// a new flow always restarts from IDLE.
var transitions = map[FlowState][]FlowState{
	StateIdle:                 {StateAwaitingProviderURL, StateFailed},
	StateAwaitingProviderURL:  {StateAwaitingUserRedirect, StateFailed},
	StateAwaitingUserRedirect: {StateExchangingCode, StateFailed},
	StateExchangingCode:       {StateComplete, StateFailed},
}

func canTransition(from, to FlowState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
