// Package systemlog reads the current boot's system log and finds the
// regions bounded by hwcert markers.
package systemlog

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/wait"
	cerr "github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrLogUnavailable means neither the journal nor the static log could be read.
var ErrLogUnavailable = cerr.New("system log unavailable")

// Source identifies where the last read came from.
type Source string

const (
	SourceJournal Source = "journal"
	SourceFile    Source = "file"
)

type options struct {
	markers    Markers
	staticPath string
	kernelTag  string
	bootMarker string
	wait       wait.Options
	runner     execute.Runner
}

// Option customizes a Reader.
type Option func(*options)

// WithMarkers sets the marker prefix and process id used by Section.
func WithMarkers(m Markers) Option { return func(o *options) { o.markers = m } }

// StaticPath sets the fallback log file read when the journal is unavailable.
func StaticPath(p string) Option { return func(o *options) { o.staticPath = p } }

// BootBanner sets the tag and phrase that identify a kernel boot line.
func BootBanner(kernelTag, phrase string) Option {
	return func(o *options) {
		o.kernelTag = kernelTag
		o.bootMarker = phrase
	}
}

// WaitOptions bounds WaitFor.
func WaitOptions(w wait.Options) Option { return func(o *options) { o.wait = w } }

// WithRunner replaces the command runner used to query the journal.
func WithRunner(r execute.Runner) Option { return func(o *options) { o.runner = r } }

// Reader retrieves the log lines of the current boot.
type Reader struct {
	opts options

	mu   sync.Mutex
	last Source
}

func NewReader(opts ...Option) *Reader {
	o := options{
		markers:    Markers{Prefix: shared.DefaultLogMarker, PID: os.Getpid()},
		staticPath: shared.DefaultStaticLogPath,
		kernelTag:  shared.DefaultKernelTag,
		bootMarker: shared.DefaultBootMarker,
		wait:       wait.Options{Attempts: 10, Interval: time.Second},
		runner:     execute.Host{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reader{opts: o}
}

func (r *Reader) Markers() Markers { return r.opts.markers }

// LastSource reports which source served the most recent read.
func (r *Reader) LastSource() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// SinceBoot returns the current boot's log lines, each with its trailing
// newline. The journal is queried first; if that fails the static log is read
// from its last boot banner onward.
func (r *Reader) SinceBoot(ctx context.Context) ([]string, error) {
	logger := otelzap.Ctx(ctx)

	lines, jerr := r.journal(ctx)
	if jerr == nil {
		r.setLast(SourceJournal)
		return lines, nil
	}
	logger.Debug("Journal unavailable, falling back to static log",
		zap.String("path", r.opts.staticPath),
		zap.Error(jerr))

	lines, ferr := r.staticSinceBoot()
	if ferr != nil {
		return nil, cerr.Wrapf(ErrLogUnavailable, "journal: %v; %s: %v", jerr, r.opts.staticPath, ferr)
	}
	r.setLast(SourceFile)
	return lines, nil
}

func (r *Reader) setLast(s Source) {
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
}

func (r *Reader) journal(ctx context.Context) ([]string, error) {
	out, err := r.opts.runner.Run(ctx, execute.Options{
		Command: "journalctl",
		Args:    []string{"-b0", "--no-pager"},
		Capture: true,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (r *Reader) staticSinceBoot() ([]string, error) {
	f, err := os.Open(r.opts.staticPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSinceBoot(f, r.opts.kernelTag, r.opts.bootMarker)
}

// readSinceBoot keeps the lines from the last boot banner on. Nothing is kept
// when no banner is present. Lines that are not valid UTF-8 are dropped.
func readSinceBoot(src io.Reader, kernelTag, bootMarker string) ([]string, error) {
	br := bufio.NewReader(src)
	var (
		lines []string
		found bool
	)
	for {
		line, err := br.ReadString('\n')
		if line != "" && utf8.ValidString(line) {
			if IsBootBanner(line, kernelTag, bootMarker) {
				found = true
				lines = lines[:0]
			}
			if found {
				lines = append(lines, line)
			}
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	parts := strings.SplitAfter(out, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || !utf8.ValidString(p) {
			continue
		}
		lines = append(lines, p)
	}
	return lines
}

// Section returns the log text between the begin and end markers for name,
// inclusive, or "" when the begin marker is not in the current boot's log.
func (r *Reader) Section(ctx context.Context, name string, withPID bool) (string, error) {
	lines, err := r.SinceBoot(ctx)
	if err != nil {
		return "", err
	}
	m := r.opts.markers
	return ExtractSection(lines, m.Begin(name, withPID), m.End(name, withPID)), nil
}

// CountBootBanners counts kernel boot banners in text using the reader's
// configured tag and phrase.
func (r *Reader) CountBootBanners(text string) int {
	return CountBootBanners(text, r.opts.kernelTag, r.opts.bootMarker)
}

// WaitFor re-reads the log until a line contains needle. When the static log
// is the source, file writes cut the polling interval short.
func (r *Reader) WaitFor(ctx context.Context, needle string) error {
	logger := otelzap.Ctx(ctx)

	opts := r.opts.wait
	if wake, stop := r.watchStatic(ctx); wake != nil {
		defer stop()
		opts.Wake = wake
	}

	err := wait.Poll(ctx, func(ctx context.Context) error {
		lines, err := r.SinceBoot(ctx)
		if err != nil {
			return wait.Break(err)
		}
		for _, l := range lines {
			if strings.Contains(l, needle) {
				return nil
			}
		}
		return cerr.Newf("%q not in system log yet", needle)
	}, opts)
	if err != nil {
		return cerr.Wrapf(err, "waiting for %q", needle)
	}
	logger.Debug("Marker found in system log", zap.String("needle", needle), zap.String("source", string(r.LastSource())))
	return nil
}

func (r *Reader) watchStatic(ctx context.Context) (<-chan struct{}, func()) {
	if _, err := os.Stat(r.opts.staticPath); err != nil {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil
	}
	if err := w.Add(r.opts.staticPath); err != nil {
		_ = w.Close()
		return nil, nil
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				otelzap.Ctx(ctx).Debug("Log watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()
	return wake, func() {
		close(done)
		_ = w.Close()
	}
}
