package systemlog

import "fmt"

const (
	MarkBegin = "begin"
	MarkEnd   = "end"
)

// Markers formats the begin/end lines that bound an event window in the
// system log. Prefix identifies hwcert; PID separates concurrent runs.
type Markers struct {
	Prefix string
	PID    int
}

// Format returns "<prefix>[<pid>]: <name>: <mark>", or
// "<prefix>: <name>: <mark>" when withPID is false. Begin and end markers for
// the same name differ only in the mark.
func (m Markers) Format(name, mark string, withPID bool) string {
	if withPID {
		return fmt.Sprintf("%s[%d]: %s: %s", m.Prefix, m.PID, name, mark)
	}
	return fmt.Sprintf("%s: %s: %s", m.Prefix, name, mark)
}

func (m Markers) Begin(name string, withPID bool) string {
	return m.Format(name, MarkBegin, withPID)
}

func (m Markers) End(name string, withPID bool) string {
	return m.Format(name, MarkEnd, withPID)
}

// Open matches any marker written by this process.
func (m Markers) Open() string {
	return fmt.Sprintf("%s[%d]", m.Prefix, m.PID)
}
