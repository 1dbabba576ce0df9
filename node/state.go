package node

// State is the node's mining lifecycle.
type State int32

const (
	StateIdle State = iota
	StateMining
	StateReorganizing
)

var stateNames = []string{"idle", "mining", "reorganizing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
