// Package logger provides a small leveled logger with per-component tags.
//
// Components are short subsystem names ("pipeline", "discord", "archive")
// so the gateway log can be filtered without structured-log tooling.
package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	level  atomic.Int32
	target = log.New(os.Stderr, "", log.LstdFlags)
)

func init() {
	level.Store(int32(INFO))
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(l *log.Logger) {
	target = l
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "?"
}

func emit(l Level, component, msg string, fields map[string]any) {
	if int32(l) < level.Load() {
		return
	}
	var b strings.Builder
	b.WriteString(l.String())
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	target.Println(b.String())
}

func Debug(msg string, args ...any) { emit(DEBUG, "", fmt.Sprintf(msg, args...), nil) }
func Info(msg string, args ...any)  { emit(INFO, "", fmt.Sprintf(msg, args...), nil) }
func Warn(msg string, args ...any)  { emit(WARN, "", fmt.Sprintf(msg, args...), nil) }
func Error(msg string, args ...any) { emit(ERROR, "", fmt.Sprintf(msg, args...), nil) }

// Component-tagged variants.

func DebugC(component, msg string) { emit(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { emit(INFO, component, msg, nil) }
func WarnC(component, msg string)  { emit(WARN, component, msg, nil) }
func ErrorC(component, msg string) { emit(ERROR, component, msg, nil) }

// Component-tagged variants with structured fields.

func DebugCF(component, msg string, fields map[string]any) { emit(DEBUG, component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any)  { emit(INFO, component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any)  { emit(WARN, component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { emit(ERROR, component, msg, fields) }
