package model

// Action is the semantic change a notification describes.
type Action uint8

const (
	ActionAdded Action = iota + 1
	ActionRemoved
	ActionReplaced
	ActionParentUpdated
	ActionLabelUpdated
	ActionSelected
	ActionPreloaded
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionRemoved:
		return "removed"
	case ActionReplaced:
		return "replaced"
	case ActionParentUpdated:
		return "parent-updated"
	case ActionLabelUpdated:
		return "label-updated"
	case ActionSelected:
		return "selected"
	case ActionPreloaded:
		return "preloaded"
	default:
		return "unknown"
	}
}

// Event is one tree notification. Node is valid for every action; Old is
// set only for ActionReplaced. For ActionPreloaded, Node is the series and
// SOPUID names the instance that became resident.
type Event struct {
	Action Action
	Level  Level
	Node   NodeID
	Key    string
	Old    NodeID
	SOPUID string
}

// Listener receives tree notifications. Delivery is synchronous on the
// emitting goroutine, in emission order, with no coalescing — handlers
// must be short, non-blocking reactions.
type Listener func(Event)

// AddListener registers a listener. Must be called on the model goroutine.
func (t *Tree) AddListener(l Listener) {
	t.listeners = append(t.listeners, l)
}

func (t *Tree) fire(ev Event) {
	for _, l := range t.listeners {
		l(ev)
	}
}

// Select marks a patient as focused and notifies listeners. Selecting the
// already focused patient or a dead node is a no-op. Must be called on the
// model goroutine.
func (t *Tree) Select(patient NodeID) {
	if patient == t.selected || !t.valid(patient) || t.nodes[patient].level != LevelPatient {
		return
	}
	t.selected = patient
	t.fire(Event{
		Action: ActionSelected,
		Level:  LevelPatient,
		Node:   patient,
		Key:    t.nodes[patient].key,
	})
}

// Selected returns the focused patient, or NoNode.
func (t *Tree) Selected() NodeID { return t.selected }

// EmitPreloaded publishes a preload-progress notification for an instance
// of the given series. Background tasks do not call this directly; they
// hand progress to the mutation queue so delivery stays on the model
// goroutine.
func (t *Tree) EmitPreloaded(series NodeID, sopUID string) {
	if !t.valid(series) {
		return
	}
	t.fire(Event{
		Action: ActionPreloaded,
		Level:  LevelSeries,
		Node:   series,
		Key:    t.nodes[series].key,
		SOPUID: sopUID,
	})
}
