package scene

import "sync"

const defaultInputLogSize = 256

// InputHandler receives every input event while the tree lock is held.
type InputHandler func(root *Node, event InputEvent)

// ActionState is the current state of a named logical input.
type ActionState struct {
	Pressed  bool
	Strength float64
}

// Tree owns the live node graph. All reads and writes of nodes go through Do
// so the frame loop, the listener and scripts never race.
type Tree struct {
	mu       sync.Mutex
	root     *Node
	current  *Node
	frame    uint64
	pending  []func(frame uint64)
	handlers []InputHandler
	actions  map[string]ActionState
	mouse    Vector2
	inputLog []InputEvent
	logSize  int
}

// NewTree constructs a tree with a Window root named "root".
func NewTree() *Tree {
	return &Tree{
		root:    NewNode(ClassWindow, "root"),
		actions: map[string]ActionState{},
		logSize: defaultInputLogSize,
	}
}

// Do runs fn with exclusive access to the graph.
func (t *Tree) Do(fn func(root *Node)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.root)
}

// SetCurrentScene replaces the current scene under the root.
func (t *Tree) SetCurrentScene(scene *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Free()
	}
	t.current = scene
	if scene != nil {
		t.root.AddChild(scene)
	}
}

// CurrentScene returns the current scene node. Callers must hold the tree via Do
// before touching it.
func (t *Tree) CurrentScene() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// HandleInput registers an input handler.
func (t *Tree) HandleInput(handler InputHandler) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

// PushInput delivers an event: action and pointer state are updated, the event
// is logged and every handler runs in registration order.
func (t *Tree) PushInput(event InputEvent) {
	if event == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev := event.(type) {
	case ActionEvent:
		if ev.Pressed {
			t.actions[ev.Action] = ActionState{Pressed: true, Strength: ev.Strength}
		} else {
			delete(t.actions, ev.Action)
		}
	case MouseMotionEvent:
		t.mouse = ev.Position
	case MouseButtonEvent:
		t.mouse = ev.Position
	}
	t.inputLog = append(t.inputLog, event)
	if over := len(t.inputLog) - t.logSize; over > 0 {
		t.inputLog = append([]InputEvent(nil), t.inputLog[over:]...)
	}
	for _, handler := range t.handlers {
		handler(t.root, event)
	}
}

// InputLog returns the most recent input events, oldest first.
func (t *Tree) InputLog() []InputEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]InputEvent(nil), t.inputLog...)
}

// Action returns the state of a named logical input.
func (t *Tree) Action(name string) ActionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actions[name]
}

// MousePosition returns the last pointer position.
func (t *Tree) MousePosition() Vector2 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mouse
}

// OnNextFrame queues fn to run once, after the next Step.
func (t *Tree) OnNextFrame(fn func(frame uint64)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, fn)
}

// Step advances one frame and runs the callbacks queued before it. Callbacks
// run without the tree lock held.
func (t *Tree) Step() uint64 {
	t.mu.Lock()
	t.frame++
	frame := t.frame
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, fn := range pending {
		fn(frame)
	}
	return frame
}

// Frame returns the number of completed frames.
func (t *Tree) Frame() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}
