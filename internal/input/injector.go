// Package input replays batches of synthetic input against a scene tree.
package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"pkt.systems/gamebridge/internal/uitree"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// Target is the engine surface the injector drives.
type Target interface {
	PushInput(event scene.InputEvent)
	Do(fn func(root *scene.Node))
}

// Injector executes input batches one at a time.
type Injector struct {
	target Target
	log    pslog.Logger
	busy   atomic.Bool
	after  func(time.Duration) <-chan time.Time
}

// New constructs an Injector for target.
func New(target Target, logger pslog.Logger) *Injector {
	return &Injector{target: target, log: logger, after: time.After}
}

// Busy reports whether a batch is executing.
func (in *Injector) Busy() bool {
	return in.busy.Load()
}

// Run executes the raw action array strictly in order and stops at the first
// failure. A second batch submitted while one is running is rejected.
func (in *Injector) Run(ctx context.Context, raw json.RawMessage) schema.InputReply {
	if !in.busy.CompareAndSwap(false, true) {
		return schema.InputReply{Error: schema.ErrBatchInProgress.Error()}
	}
	defer in.busy.Store(false)

	var actions []json.RawMessage
	if err := json.Unmarshal(raw, &actions); err != nil || len(actions) == 0 {
		return schema.InputReply{Error: schema.ErrEmptyBatch.Error()}
	}
	started := time.Now()
	processed := 0
	for i, rawAction := range actions {
		action, err := decodeAction(rawAction)
		if err == nil {
			err = in.execute(ctx, action)
		}
		if err != nil {
			if in.log != nil {
				in.log.Debug("input batch failed", "index", i, "type", action.Type, "processed", processed, "err", err)
			}
			return schema.InputReply{
				Error:            fmt.Sprintf("action %d (%s): %v", i, actionLabel(action.Type), err),
				ActionsProcessed: processed,
			}
		}
		if action.Type != schema.InputWait {
			processed++
		}
	}
	if in.log != nil {
		in.log.Debug("input batch done", "actions", len(actions), "duration_ms", time.Since(started).Milliseconds())
	}
	return schema.InputReply{Success: true, ActionsProcessed: len(actions)}
}

func actionLabel(t schema.InputActionType) string {
	if t == "" {
		return "invalid"
	}
	return string(t)
}

func decodeAction(raw json.RawMessage) (schema.Action, error) {
	var action schema.Action
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		return schema.Action{}, errors.New("action must be an object")
	}
	if err := json.Unmarshal(raw, &action); err != nil {
		return schema.Action{}, fmt.Errorf("malformed action: %w", err)
	}
	switch action.Type {
	case schema.InputKey, schema.InputMouseButton, schema.InputMouseMotion,
		schema.InputClickElement, schema.InputAction:
	case schema.InputWait:
		if action.Ms == nil || *action.Ms < 0 {
			return action, errors.New("wait requires a non-negative ms")
		}
	case "":
		return action, errors.New("missing action type")
	default:
		return action, fmt.Errorf("unknown action type %q", action.Type)
	}
	return action, nil
}

func (in *Injector) execute(ctx context.Context, a schema.Action) error {
	switch a.Type {
	case schema.InputKey:
		return in.key(a)
	case schema.InputMouseButton:
		return in.mouseButton(a)
	case schema.InputMouseMotion:
		in.target.PushInput(scene.MouseMotionEvent{
			Position: scene.Vector2{X: a.X, Y: a.Y},
			Relative: scene.Vector2{X: a.RelativeX, Y: a.RelativeY},
		})
		return nil
	case schema.InputClickElement:
		return in.clickElement(a)
	case schema.InputAction:
		return in.namedAction(a)
	case schema.InputWait:
		return in.wait(ctx, waitDuration(*a.Ms))
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func pressed(a schema.Action) bool {
	return a.Pressed == nil || *a.Pressed
}

func (in *Injector) key(a schema.Action) error {
	keycode := scene.FindKeycode(a.Key)
	if keycode == scene.KeyNone {
		return fmt.Errorf("unknown key %q", a.Key)
	}
	in.target.PushInput(scene.KeyEvent{
		Keycode: keycode,
		Pressed: pressed(a),
		Shift:   a.Shift,
		Ctrl:    a.Ctrl,
		Alt:     a.Alt,
	})
	return nil
}

func resolveButton(name string) (scene.MouseButton, error) {
	if name == "" {
		return scene.MouseButtonLeft, nil
	}
	button := scene.ParseMouseButton(name)
	if button == scene.MouseButtonNone {
		return button, fmt.Errorf("unknown mouse button %q", name)
	}
	return button, nil
}

func (in *Injector) mouseButton(a schema.Action) error {
	button, err := resolveButton(a.Button)
	if err != nil {
		return err
	}
	pos := scene.Vector2{X: a.X, Y: a.Y}
	if a.Pressed != nil {
		in.target.PushInput(scene.MouseButtonEvent{Button: button, Position: pos, Pressed: *a.Pressed, DoubleClick: a.DoubleClick})
		return nil
	}
	in.click(button, pos, a.DoubleClick)
	return nil
}

func (in *Injector) click(button scene.MouseButton, pos scene.Vector2, double bool) {
	in.target.PushInput(scene.MouseButtonEvent{Button: button, Position: pos, Pressed: true, DoubleClick: double})
	in.target.PushInput(scene.MouseButtonEvent{Button: button, Position: pos, Pressed: false})
}

func (in *Injector) clickElement(a schema.Action) error {
	if a.Element == "" {
		return errors.New("click_element requires element")
	}
	button, err := resolveButton(a.Button)
	if err != nil {
		return err
	}
	var (
		found   bool
		visible bool
		center  scene.Vector2
	)
	in.target.Do(func(root *scene.Node) {
		node := uitree.Resolve(root, a.Element)
		if node == nil {
			return
		}
		found = true
		visible = node.IsVisibleInTree()
		center = node.GlobalRect().Center()
	})
	if !found {
		return fmt.Errorf("element not found: %q", a.Element)
	}
	if !visible {
		return fmt.Errorf("element not visible: %q", a.Element)
	}
	in.click(button, center, a.DoubleClick)
	return nil
}

func (in *Injector) namedAction(a schema.Action) error {
	if a.Action == "" {
		return errors.New("action requires a name")
	}
	strength := 1.0
	if a.Strength != nil {
		strength = *a.Strength
	}
	in.target.PushInput(scene.ActionEvent{Action: a.Action, Strength: strength, Pressed: pressed(a)})
	return nil
}

// maxWaitMs is the longest wait a time.Duration can hold.
const maxWaitMs = float64(math.MaxInt64 / int64(time.Millisecond))

func waitDuration(ms float64) time.Duration {
	if ms >= maxWaitMs {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (in *Injector) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-in.after(d):
		return nil
	}
}
