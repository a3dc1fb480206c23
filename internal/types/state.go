package types

type AvionicsState string

const (
	StateOff       AvionicsState = "off"
	StatePOST      AvionicsState = "post"
	StateIdle      AvionicsState = "idle"
	StateReady     AvionicsState = "ready"
	StateCountdown AvionicsState = "countdown"
	StateInFlight  AvionicsState = "in-flight"
	StateLanded    AvionicsState = "landed"
	StateError     AvionicsState = "error"
)

// Lifecycle is the boot-to-flight order. Error sits outside it.
var Lifecycle = []AvionicsState{
	StateOff,
	StatePOST,
	StateIdle,
	StateReady,
	StateCountdown,
	StateInFlight,
	StateLanded,
}

// Predecessor returns the only state from which s may be entered. Off and
// Error have none.
func (s AvionicsState) Predecessor() (AvionicsState, bool) {
	for i := 1; i < len(Lifecycle); i++ {
		if Lifecycle[i] == s {
			return Lifecycle[i-1], true
		}
	}
	return "", false
}
