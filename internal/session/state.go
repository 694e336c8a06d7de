package session

// State is the lifecycle state of a Controller.
type State int32

const (
	Unloaded State = iota
	Loading
	Ready
	// Saving is Ready with an explicit Save in progress. Intents are accepted.
	Saving
)

var stateNames = [...]string{"unloaded", "loading", "ready", "saving"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// acceptsIntents reports whether editing operations may run.
func (s State) acceptsIntents() bool {
	return s == Ready || s == Saving
}

// EventKind names a change published to subscribers.
type EventKind string

const (
	EventStateChanged     EventKind = "state_changed"
	EventNodeAdded        EventKind = "node_added"
	EventNodeUpdated      EventKind = "node_updated"
	EventNodeRemoved      EventKind = "node_removed"
	EventEdgeAdded        EventKind = "edge_added"
	EventEdgeUpdated      EventKind = "edge_updated"
	EventEdgeRemoved      EventKind = "edge_removed"
	EventSelectionChanged EventKind = "selection_changed"
	EventPersistFailed    EventKind = "persist_failed"
)

// Event describes one change of session state. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind   EventKind
	State  State
	NodeID string
	EdgeID string
	Err    error
}
