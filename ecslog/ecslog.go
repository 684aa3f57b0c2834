// Package ecslog implements the small leveled, structured logger used for
// diagnostics. The scheduler and the rollback controller each hold a
// logger derived from Root; the scheduler's release-build dependency-cycle
// warning is the only message this module emits. It is modeled on the
// teacher's own log package: the same support libraries (fatih/color,
// mattn/go-colorable, mattn/go-isatty, go-stack/stack) back a terminal
// logger with colorized level tags and caller capture on warnings and
// errors. It is never on the hot path of a running system and never used
// for control flow. Mask/store inconsistency is not logged here; it is
// caught by verify_invariants at tick boundaries.
package ecslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow, color.Bold),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger is a minimal leveled, key/value logger.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	level  Level
	ctx    []interface{}
	name   string
}

// New constructs a Logger writing to os.Stderr, auto-detecting terminal
// color support the way the teacher's log package does.
func New(name string) *Logger {
	isTerm := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return &Logger{
		out:   colorable.NewColorableStderr(),
		color: isTerm,
		level: LevelInfo,
		name:  name,
	}
}

// SetLevel adjusts the minimum level that is emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

// With returns a derived Logger carrying additional fixed key/value context.
func (l *Logger) With(kv ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx := make([]interface{}, 0, len(l.ctx)+len(kv))
	ctx = append(ctx, l.ctx...)
	ctx = append(ctx, kv...)
	return &Logger{out: l.out, color: l.color, level: l.level, ctx: ctx, name: l.name}
}

func (l *Logger) log(lvl Level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl < l.level {
		return
	}
	tag := lvl.String()
	if l.color {
		tag = levelColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(l.out, "%s [%s] %s %s", time.Now().UTC().Format("15:04:05.000"), tag, l.name, msg)
	all := make([]interface{}, 0, len(l.ctx)+len(kv))
	all = append(all, l.ctx...)
	all = append(all, kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	if lvl >= LevelWarn {
		// Caller capture for diagnostics: skip log and the Warn/Error
		// wrapper that called it.
		c := stack.Caller(2)
		fmt.Fprintf(l.out, " caller=%+v", c)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.log(LevelTrace, msg, kv) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv) }

// Root is the package-level default logger, analogous to the teacher's
// log.Root(). Packages that don't receive an explicit *Logger use this.
var Root = New("ecsdb")
