package executetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
)

// Journal is an in-memory system log: logger(1) appends a line and
// journalctl returns everything. Other commands go to Next, or succeed
// silently when Next is nil.
type Journal struct {
	mu    sync.Mutex
	lines []string
	// Fail makes journalctl report the journal as unavailable.
	Fail bool
	Next execute.Runner
}

// Add appends a raw log line.
func (j *Journal) Add(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lines = append(j.lines, line+"\n")
}

// Lines returns a copy of the log lines, each with its newline.
func (j *Journal) Lines() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.lines...)
}

// Text returns the whole log.
func (j *Journal) Text() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return strings.Join(j.lines, "")
}

func (j *Journal) Run(ctx context.Context, opts execute.Options) (string, error) {
	switch opts.Command {
	case "logger":
		if len(opts.Args) > 0 {
			j.Add("host logger[99]: " + opts.Args[len(opts.Args)-1])
		}
		return "", nil
	case "journalctl":
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.Fail {
			return "", errors.New("journal unavailable")
		}
		return strings.Join(j.lines, ""), nil
	}
	if j.Next != nil {
		return j.Next.Run(ctx, opts)
	}
	return "", nil
}
