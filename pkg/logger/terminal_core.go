package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TerminalPrefix marks log messages meant for the operator at the console.
// They bypass the console encoder and are printed as plain lines.
const TerminalPrefix = "terminal prompt:"

type terminalConsoleCore struct {
	base zapcore.Core
	out  io.Writer
}

func newTerminalConsoleCore(base zapcore.Core) zapcore.Core {
	return &terminalConsoleCore{base: base, out: os.Stdout}
}

func (c *terminalConsoleCore) Enabled(level zapcore.Level) bool { return c.base.Enabled(level) }

func (c *terminalConsoleCore) With(fields []zapcore.Field) zapcore.Core {
	return &terminalConsoleCore{base: c.base.With(fields), out: c.out}
}

func (c *terminalConsoleCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if isTerminal(entry.Message) {
		return ce.AddCore(entry, c)
	}
	return c.base.Check(entry, ce)
}

func (c *terminalConsoleCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if !isTerminal(entry.Message) {
		return c.base.Write(entry, fields)
	}

	var lines []string
	if text := strings.TrimSpace(strings.TrimPrefix(entry.Message, TerminalPrefix)); text != "" {
		lines = append(lines, strings.Split(text, "\n")...)
	}
	lines = append(lines, fieldLines(fields)...)
	if len(lines) == 0 {
		lines = []string{""}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(c.out, line); err != nil {
			return err
		}
	}
	return nil
}

func (c *terminalConsoleCore) Sync() error { return c.base.Sync() }

func isTerminal(msg string) bool { return strings.HasPrefix(msg, TerminalPrefix) }

// fieldLines renders an "output" field verbatim first, then remaining fields
// as sorted key: value pairs.
func fieldLines(fields []zapcore.Field) []string {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	var lines []string
	if output, ok := enc.Fields["output"]; ok {
		lines = append(lines, strings.Split(fmt.Sprint(output), "\n")...)
		delete(enc.Fields, "output")
	}
	keys := make([]string, 0, len(enc.Fields))
	for key := range enc.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", key, enc.Fields[key]))
	}
	return lines
}
