package continuation

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	cerr "github.com/cockroachdb/errors"
)

// TimestampLayout is the first line of the state file, in local time.
const TimestampLayout = "2006-01-02 15:04:05"

// State is what survives the reboot.
type State struct {
	Timestamp time.Time
	Method    string
	Kernel    string
}

// MarshalText renders the three-line state file: timestamp, method, kernel.
// Method and kernel are omitted when the method is empty.
func (s State) MarshalText() ([]byte, error) {
	if strings.ContainsAny(s.Method, "\n") || strings.ContainsAny(s.Kernel, "\n") {
		return nil, cerr.New("state fields must be single lines")
	}
	var b bytes.Buffer
	fmt.Fprintln(&b, s.Timestamp.Format(TimestampLayout))
	if s.Method != "" {
		fmt.Fprintln(&b, s.Method)
		fmt.Fprintln(&b, s.Kernel)
	}
	return b.Bytes(), nil
}

// ParseState reads a state file. The timestamp is interpreted in loc.
func ParseState(data []byte, loc *time.Location) (State, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return State{}, cerr.Wrap(err, "read state")
	}
	if len(lines) == 0 || lines[0] == "" {
		return State{}, ErrCorruptState
	}

	ts, err := time.ParseInLocation(TimestampLayout, lines[0], loc)
	if err != nil {
		return State{}, cerr.Wrapf(ErrCorruptState, "timestamp %q: %v", lines[0], err)
	}
	s := State{Timestamp: ts}
	if len(lines) > 1 {
		s.Method = lines[1]
	}
	if len(lines) > 2 {
		s.Kernel = lines[2]
	}
	return s, nil
}

// Store keeps State in a single file whose presence means "armed".
type Store struct {
	Path     string
	Location *time.Location
}

func (s *Store) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path)
	return err == nil && info.Mode().IsRegular()
}

// Save writes the state and syncs it to disk so that it outlives an abrupt reboot.
func (s *Store) Save(st State) error {
	data, err := st.MarshalText()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), shared.DirPermStandard); err != nil {
		return cerr.Wrap(err, "create state directory")
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, shared.FilePermStandard)
	if err != nil {
		return cerr.Wrapf(err, "open state file %s", s.Path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return cerr.Wrapf(err, "write state file %s", s.Path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return cerr.Wrapf(err, "sync state file %s", s.Path)
	}
	return f.Close()
}

func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return State{}, ErrNotArmed
	}
	if err != nil {
		return State{}, cerr.Wrapf(err, "read state file %s", s.Path)
	}
	return ParseState(data, s.loc())
}

// Consume loads the state and deletes the file. The file is removed even if
// it cannot be parsed, so a corrupt state never blocks later runs.
func (s *Store) Consume() (State, error) {
	st, err := s.Load()
	if cerr.Is(err, ErrNotArmed) {
		return State{}, err
	}
	if rmErr := s.Remove(); rmErr != nil && err == nil {
		err = rmErr
	}
	return st, err
}

// Remove deletes the state file; a missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return cerr.Wrapf(err, "remove state file %s", s.Path)
	}
	return nil
}
