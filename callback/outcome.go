package callback

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-link/oauthmodel"
)

type Phase string

const (
	PhaseReceived       Phase = "RECEIVED"
	PhaseVerifyingState Phase = "VERIFYING_STATE"
	PhaseExchanging     Phase = "EXCHANGING"
	PhaseCommitting     Phase = "COMMITTING"
	PhaseDone           Phase = "DONE"
	PhaseError          Phase = "ERROR"
	PhaseSkipped        Phase = "SKIPPED"
)

// Terminal reports whether no further phase follows.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError || p == PhaseSkipped
}

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonProviderDenied Reason = "provider_denied"
	ReasonMissingCode    Reason = "missing_code"
	ReasonCSRF           Reason = "csrf"
	ReasonExchangeFailed Reason = "exchange_failed"
	ReasonDuplicate      Reason = "duplicate"
)

// FlowError is the classified cause of an ERROR outcome.
type FlowError struct {
	Kind Reason
	Err  error
}

func (e *FlowError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Outcome is everything the host needs to render the callback result.
type Outcome struct {
	Intent oauthmodel.Intent
	FlowID string
	Phase  Phase
	Reason Reason
	Err    *FlowError

	// Message is safe to show to the user.
	Message       string
	RedirectTo    string
	RedirectAfter time.Duration
	IsNewUser     bool

	// Transitions lists every phase entered, in order.
	Transitions []Phase
}

func (o Outcome) Success() bool {
	return o.Phase == PhaseDone
}
