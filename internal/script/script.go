// Package script compiles and runs caller-supplied JavaScript against the live
// scene tree.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"pkt.systems/gamebridge/internal/serialize"
	"pkt.systems/gamebridge/scene"
	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 30 * time.Second

// ErrMissingEntryPoint is returned when the source does not define run(root).
var ErrMissingEntryPoint = fmt.Errorf("script must define function %s(root)", schema.ScriptEntryPoint)

// Tree is the lockable scene graph a script runs against.
type Tree interface {
	Do(fn func(root *scene.Node))
}

// CompileError reports a source that failed to compile.
type CompileError struct {
	Code string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("script compile failed [%s]: %v", e.Code, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Runner executes scripts. The zero value uses DefaultTimeout and no logger.
type Runner struct {
	Timeout time.Duration
	Log     pslog.Logger
}

// Compile parses source without running it.
func Compile(name, source string) (*goja.Program, error) {
	program, err := goja.Compile(name, source, false)
	if err == nil {
		return program, nil
	}
	code := "compile_error"
	var syntaxErr *goja.CompilerSyntaxError
	var refErr *goja.CompilerReferenceError
	switch {
	case errors.As(err, &syntaxErr):
		code = "parse_error"
	case errors.As(err, &refErr):
		code = "reference_error"
	}
	return nil, &CompileError{Code: code, Err: err}
}

// Run compiles source in a fresh VM, resolves run(root) and invokes it once
// with the tree root held. The return value is passed through the value
// serializer. The VM is discarded afterwards.
func (r *Runner) Run(ctx context.Context, tree Tree, name, source string) (any, error) {
	program, err := Compile(name, source)
	if err != nil {
		return nil, err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	r.installGlobals(vm)

	watchdog := time.AfterFunc(timeout, func() {
		vm.Interrupt(fmt.Sprintf("exceeded %s", timeout))
	})
	defer watchdog.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(context.Cause(ctx).Error())
	})
	defer stop()

	// Top-level code runs without the tree so that a missing entry point is
	// detected before anything can touch it.
	if _, err := vm.RunProgram(program); err != nil {
		return nil, runtimeError(err)
	}
	entry, ok := goja.AssertFunction(vm.Get(schema.ScriptEntryPoint))
	if !ok {
		return nil, ErrMissingEntryPoint
	}

	var result any
	started := time.Now()
	tree.Do(func(root *scene.Node) {
		defer func() {
			if p := recover(); p != nil {
				if perr, ok := p.(error); ok {
					err = perr
					return
				}
				err = fmt.Errorf("%v", p)
			}
		}()
		var value goja.Value
		value, err = entry(goja.Undefined(), vm.ToValue(root))
		if err != nil {
			return
		}
		result = serialize.Value(value.Export())
	})
	if err != nil {
		return nil, runtimeError(err)
	}
	if r.Log != nil {
		r.Log.Debug("script done", "name", name, "duration_ms", time.Since(started).Milliseconds())
	}
	return result, nil
}

func runtimeError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("script error: %s", exception.Error())
	}
	return fmt.Errorf("script error: %w", err)
}

func (r *Runner) installGlobals(vm *goja.Runtime) {
	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		if r.Log != nil {
			args := make([]any, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				args = append(args, arg.String())
			}
			r.Log.Info("script print", "args", args)
		}
		return goja.Undefined()
	})
	_ = vm.Set("Vector2", func(x, y float64) scene.Vector2 {
		return scene.Vector2{X: x, Y: y}
	})
	_ = vm.Set("Color", func(red, green, blue, alpha float64) scene.Color {
		return scene.Color{R: red, G: green, B: blue, A: alpha}
	})
	_ = vm.Set("newNode", func(class, name string) *scene.Node {
		return scene.NewNode(class, name)
	})
}
