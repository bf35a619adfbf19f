package session

// Status is the lifecycle state of an Engine. Closed and Failed are terminal.
type Status int

const (
	Uninitialized Status = iota
	Connecting
	Connected
	Closed
	Failed
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == Closed || s == Failed
}
