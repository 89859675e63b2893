// Package report appends test output blocks to the HTML results file.
//
// The file is a sequence of <output> blocks, each holding a summary button
// whose class encodes the result. At most one block is open at a time.
package report

import (
	_ "embed"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/result"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	cerr "github.com/cockroachdb/errors"
)

//go:embed base.html
var baseHTML string

// Writer appends to a report file. It is safe for use by one test at a time;
// the mutex only guards against accidental overlap.
type Writer struct {
	path string

	mu   sync.Mutex
	open bool
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string { return w.path }

// IsOpen reports whether a block is waiting for Close.
func (w *Writer) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Reset truncates the report and writes the list of available tests with the
// selected ones marked.
func (w *Writer) Reset(runID string, available, selected []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), shared.DirPermStandard); err != nil {
		return cerr.Wrap(err, "create report directory")
	}

	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[s] = true
	}

	var b strings.Builder
	b.WriteString(baseHTML)
	if runID != "" {
		fmt.Fprintf(&b, "<info>Run %s</info>", html.EscapeString(runID))
	}
	b.WriteString("<info>Selected tests:</info><tests>")
	for _, name := range available {
		class := ""
		if chosen[name] {
			class = ` class="selected"`
		}
		fmt.Fprintf(&b, "<test%s>%s</test>", class, html.EscapeString(name))
	}
	b.WriteString("</tests><info>Results:</info>\n")

	if err := os.WriteFile(w.path, []byte(b.String()), shared.FilePermStandard); err != nil {
		return cerr.Wrapf(err, "reset report %s", w.path)
	}
	w.open = false
	return nil
}

// Begin closes any open block and opens a new one.
func (w *Writer) Begin(name, description string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.closeLocked(); err != nil {
		return err
	}

	n := html.EscapeString(name)
	var text string
	if description != "" {
		d := html.EscapeString(description)
		text = fmt.Sprintf("<output name=\"%s\" description=\"%s\">\n\t%s - %s\n", n, d, n, d)
	} else {
		text = fmt.Sprintf("<output name=\"%s\">\n\t%s:\n", n, n)
	}
	if err := w.append(text); err != nil {
		return err
	}
	w.open = true
	return nil
}

// Line appends one line of text to the open block.
func (w *Writer) Line(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append("\t" + html.EscapeString(text) + "\n")
}

// Summary writes the result button.
func (w *Writer) Summary(level result.Level) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(fmt.Sprintf("\t<button class=\"pure-button button-%s\">%s</button>\n",
		ButtonClass(level), html.EscapeString(level.String())))
}

// Close ends the open block, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	if !w.open {
		return nil
	}
	if err := w.append("</output>\n\n"); err != nil {
		return err
	}
	w.open = false
	return nil
}

func (w *Writer) append(text string) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, shared.FilePermStandard)
	if err != nil {
		return cerr.Wrapf(err, "open report %s", w.path)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return cerr.Wrapf(err, "write report %s", w.path)
	}
	return f.Close()
}

// ButtonClass maps PASS to success, FAIL to error and anything else to warning.
func ButtonClass(level result.Level) string {
	switch level.Kind() {
	case result.KindPass:
		return "success"
	case result.KindFail:
		return "error"
	default:
		return "warning"
	}
}
