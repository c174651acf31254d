package locker

import "time"

const DefaultCount = 16

type Number int

type Assignments map[Number]string

func (a Assignments) Clone() Assignments {
	out := make(Assignments, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type Range struct {
	Count int
}

func (r Range) Valid(n Number) bool {
	return n >= 1 && int(n) <= r.Count
}

// Each visits lockers in ascending order.
func (r Range) Each(fn func(n Number)) {
	for i := 1; i <= r.Count; i++ {
		fn(Number(i))
	}
}

type DisplayState string

const (
	DisplayFree  DisplayState = "FREE"
	DisplayTaken DisplayState = "TAKEN"
	DisplayOpen  DisplayState = "OPEN"
)

type Cell struct {
	Number      Number       `json:"number"`
	Owner       string       `json:"owner,omitempty"`
	VisiblyOpen bool         `json:"visibly_open"`
	State       DisplayState `json:"state"`
}

type Board struct {
	ActiveCard string    `json:"active_card,omitempty"`
	Cells      []Cell    `json:"cells"`
	At         time.Time `json:"at"`
}

func DeriveDisplay(owner string, visiblyOpen bool) DisplayState {
	switch {
	case visiblyOpen:
		return DisplayOpen
	case owner != "":
		return DisplayTaken
	default:
		return DisplayFree
	}
}
