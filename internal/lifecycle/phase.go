package lifecycle

// Phase is where a controller stands in the life of the document it works on.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseDraft     Phase = "draft"
	PhaseFetched   Phase = "fetched"
	PhaseValidated Phase = "validated"
	PhaseSaved     Phase = "saved"
	PhaseChanged   Phase = "changed"
	PhaseCancelled Phase = "cancelled"
	PhaseExited    Phase = "exited"
)

// resting phases have no open draft.
var resting = []Phase{PhaseDraft, PhaseCancelled, PhaseExited, PhaseIdle}

var transitions = map[Phase][]Phase{
	PhaseIdle:      resting,
	PhaseSaved:     resting,
	PhaseCancelled: resting,
	PhaseExited:    resting,
	PhaseDraft:     {PhaseDraft, PhaseFetched, PhaseValidated, PhaseIdle},
	PhaseFetched:   {PhaseDraft, PhaseFetched, PhaseValidated, PhaseIdle},
	PhaseValidated: {PhaseDraft, PhaseFetched, PhaseValidated, PhaseSaved, PhaseChanged, PhaseIdle},
	PhaseChanged:   {PhaseSaved},
}

// CanMove reports whether the phase table has an edge from -> to.
func CanMove(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// HasDraft reports whether a draft is open in phase p.
func (p Phase) HasDraft() bool {
	switch p {
	case PhaseDraft, PhaseFetched, PhaseValidated:
		return true
	}
	return false
}
