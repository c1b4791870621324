package logx

import (
	"context"

	"pkt.systems/gamebridge/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	projectKey contextKey = iota
	commandKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithProject annotates the context logger with the project root if present.
func WithProject(ctx context.Context, root string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if root != "" {
		if current, ok := ctx.Value(projectKey).(string); ok && current == root {
			return log
		}
		log = log.With("project", root)
	}
	return log
}

// WithCommand annotates the logger with a bridge command name.
func WithCommand(log pslog.Logger, command schema.Command) pslog.Logger {
	if command != "" {
		log = log.With("command", string(command))
	}
	return log
}

// WithSession annotates the logger with the target pid and scene when known.
func WithSession(log pslog.Logger, pid int, scene string) pslog.Logger {
	if pid > 0 {
		log = log.With("pid", pid)
	}
	if scene != "" {
		log = log.With("scene", scene)
	}
	return log
}

// ContextWithProject stores the project marker on the context for log de-duplication.
func ContextWithProject(ctx context.Context, root string) context.Context {
	if ctx == nil || root == "" {
		return ctx
	}
	return context.WithValue(ctx, projectKey, root)
}

// ContextWithProjectLogger attaches the logger, already annotated with the
// project, and the project marker to the context.
func ContextWithProjectLogger(ctx context.Context, log pslog.Logger, root string) context.Context {
	if root != "" {
		log = log.With("project", root)
	}
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithProject(ctx, root)
}

// ContextWithCommand stores the command marker on the context.
func ContextWithCommand(ctx context.Context, command schema.Command) context.Context {
	if ctx == nil || command == "" {
		return ctx
	}
	return context.WithValue(ctx, commandKey, command)
}

// CommandFrom returns the command marker stored on ctx.
func CommandFrom(ctx context.Context) (schema.Command, bool) {
	if ctx == nil {
		return "", false
	}
	command, ok := ctx.Value(commandKey).(schema.Command)
	return command, ok && command != ""
}

// CopyContextFields copies project/command markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if root, ok := src.Value(projectKey).(string); ok && root != "" {
		dst = ContextWithProject(dst, root)
	}
	if command, ok := CommandFrom(src); ok {
		dst = ContextWithCommand(dst, command)
	}
	return dst
}
