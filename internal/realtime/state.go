package realtime

// State is a live connection's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// event drives State transitions.
type event int

const (
	evVerified event = iota // handshake credential accepted
	evClosed                // explicit close or transport error
)

// transition is the single authority over connection state changes. It
// returns the next state and whether the event is valid in s.
//
//	connecting --verified--> open
//	connecting --closed----> closed
//	open       --closed----> closed
func transition(s State, ev event) (State, bool) {
	switch {
	case s == StateConnecting && ev == evVerified:
		return StateOpen, true
	case s != StateClosed && ev == evClosed:
		return StateClosed, true
	}
	return s, false
}
