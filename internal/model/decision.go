package model

// DecisionKind is the user's answer to a sign-in reconciliation prompt.
// A decision is requested at most once per sign-in that surfaces conflicts
// and is discarded after it is applied.
type DecisionKind string

const (
	// ImportAll pushes every local record to the account; local wins
	// unconditionally.
	ImportAll DecisionKind = "import-all"

	// KeepRemoteOnly leaves the account untouched and marks the local
	// cache superseded.
	KeepRemoteOnly DecisionKind = "keep-remote-only"

	// MergeSelected pushes only the listed day keys.
	MergeSelected DecisionKind = "merge-selected"

	// KeepSeparate leaves local records anonymous so they stay visible
	// only in guest context and out of future reconciliation.
	KeepSeparate DecisionKind = "keep-separate"
)

// Decision carries the kind plus the selected day keys for MergeSelected.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	DayKeys []string     `json:"day_keys,omitempty"`
}

// Selected reports whether dayKey is in the merge selection.
func (d Decision) Selected(dayKey string) bool {
	for _, k := range d.DayKeys {
		if k == dayKey {
			return true
		}
	}
	return false
}

// LiveChoice is the per-day answer for a live (multi-device) conflict.
type LiveChoice string

const (
	KeepLocal  LiveChoice = "keep-local"
	KeepRemote LiveChoice = "keep-remote"
)
