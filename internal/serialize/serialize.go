// Package serialize projects live values onto JSON-friendly trees. The
// projection is lossy: node and resource references become snapshots.
package serialize

import (
	"fmt"
	"math"
	"reflect"

	"pkt.systems/gamebridge/scene"
)

// Value converts v into nil, bool, string, numbers, map[string]any or []any.
// Callers must hold the scene tree when v may reference nodes.
func Value(v any) any {
	return value(reflect.ValueOf(v), 0)
}

const maxDepth = 64

func value(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return "<max depth>"
	}
	if rv.Kind() == reflect.Interface || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		if rv.IsNil() {
			return nil
		}
		return value(rv.Elem(), depth)
	}
	if rv.CanInterface() {
		switch v := rv.Interface().(type) {
		case *scene.Node:
			return map[string]any{"class": v.Class, "name": v.Name, "path": v.Path()}
		case *scene.Resource:
			return map[string]any{"class": v.Class, "path": v.Path}
		case scene.Resource:
			return map[string]any{"class": v.Class, "path": v.Path}
		case scene.Vector2:
			return map[string]any{"x": number(v.X), "y": number(v.Y)}
		case scene.Vector3:
			return map[string]any{"x": number(v.X), "y": number(v.Y), "z": number(v.Z)}
		case scene.Color:
			return map[string]any{"r": number(v.R), "g": number(v.G), "b": number(v.B), "a": number(v.A)}
		case scene.Rect2:
			return map[string]any{
				"position": map[string]any{"x": number(v.Position.X), "y": number(v.Position.Y)},
				"size":     map[string]any{"x": number(v.Size.X), "y": number(v.Size.Y)},
			}
		}
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return number(rv.Float())
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key())] = value(iter.Value(), depth+1)
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = value(rv.Index(i), depth+1)
		}
		return out
	case reflect.Pointer:
		return value(rv.Elem(), depth)
	}
	return display(rv)
}

// number keeps finite floats and renders the rest as "inf", "-inf" or "nan",
// which JSON cannot carry as numbers.
func number(f float64) any {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return f
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func display(rv reflect.Value) string {
	if rv.CanInterface() {
		if s, ok := rv.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprint(rv.Interface())
	}
	return rv.String()
}
