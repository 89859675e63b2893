package hwtest

import (
	"maps"
	"strings"
)

// Descriptor identifies one test instance. It is a value: With returns a
// modified copy and never touches the receiver, so per-device instances can
// be stamped out of a template without sharing state.
type Descriptor struct {
	path        string
	description string
	interactive bool
	priority    int
	params      map[string]string
}

type Option func(*Descriptor)

func Interactive(v bool) Option { return func(d *Descriptor) { d.interactive = v } }

// Priority orders tests; lower runs first.
func Priority(p int) Option { return func(d *Descriptor) { d.priority = p } }

func Description(s string) Option { return func(d *Descriptor) { d.description = s } }

// Path replaces the slash-separated identifier.
func Path(p string) Option { return func(d *Descriptor) { d.path = p } }

// Param binds a hardware-specific value, e.g. the device a planned copy runs
// against.
func Param(key, value string) Option {
	return func(d *Descriptor) {
		if d.params == nil {
			d.params = map[string]string{}
		}
		d.params[key] = value
	}
}

func NewDescriptor(path string, opts ...Option) Descriptor {
	return Descriptor{path: path}.With(opts...)
}

func (d Descriptor) With(opts ...Option) Descriptor {
	next := d
	next.params = maps.Clone(d.params)
	for _, opt := range opts {
		opt(&next)
	}
	return next
}

func (d Descriptor) Path() string        { return d.path }
func (d Descriptor) Description() string { return d.description }
func (d Descriptor) IsInteractive() bool { return d.interactive }
func (d Descriptor) Priority() int       { return d.priority }

// Name is the last path segment.
func (d Descriptor) Name() string {
	if i := strings.LastIndex(d.path, "/"); i >= 0 {
		return d.path[i+1:]
	}
	return d.path
}

// Suite is the first path segment.
func (d Descriptor) Suite() string {
	suite, _, _ := strings.Cut(d.path, "/")
	return suite
}

func (d Descriptor) Param(key string) (string, bool) {
	v, ok := d.params[key]
	return v, ok
}

// Params returns a copy of the bound parameters.
func (d Descriptor) Params() map[string]string {
	return maps.Clone(d.params)
}
