package lpm

// Mode selects how a table is brought up to date.
type Mode int

const (
	// Update patches the live table with inserts and removals.
	Update Mode = iota
	// Replace builds a new table sized for the estimate and loads every
	// range into it.
	Replace
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// DecideMode returns Replace if the estimate does not fit in at least one
// of the current table replicas.
func DecideMode(cur CurrentParams, est Params) Mode {
	for _, c := range cur {
		if est.Exceeds(c) {
			return Replace
		}
	}
	return Update
}
