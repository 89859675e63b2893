// pkg/interaction/confirm.go

package interaction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/shared"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	Yes = "yes"
	No  = "no"
)

var (
	yesWords = map[string]bool{
		"y": true, "yes": true, "ya": true, "yup": true, "affirmative": true, "roger": true,
		"go": true, "t": true, "tak": true, "engage": true, "whatever": true, "way": true,
		"si": true, "oui": true, "ja": true, "1": true, "true": true,
	}
	noWords = map[string]bool{
		"n": true, "no": true, "na": true, "nada": true, "negative": true, "negatory": true,
		"stop": true, "nie": true, "never": true, "nooooo!": true, "no way": true, "non": true,
		"nein": true, "nicht": true, "0": true, "false": true,
	}
)

// NormalizeYesNo maps an answer onto yes or no. ok is false when the answer
// is in neither vocabulary.
func NormalizeYesNo(input string) (yes bool, ok bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch {
	case yesWords[s]:
		return true, true
	case noWords[s]:
		return false, true
	default:
		return false, false
	}
}

// Prompter asks the operator questions.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Stdio returns a prompter on the process terminal, or shared.ErrNotTTY when
// stdin is not a terminal.
func Stdio() (*Prompter, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, shared.ErrNotTTY
	}
	return NewPrompter(os.Stdin, os.Stderr), nil
}

// ReadLine prints label and returns the trimmed reply.
func (p *Prompter) ReadLine(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, _ = fmt.Fprint(p.out, label)

	text, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", cerr.Wrap(err, "read operator input")
	}
	value := strings.TrimSpace(text)
	otelzap.Ctx(ctx).Debug("Operator input received", zap.String("label", label), zap.String("value", value))
	return value, nil
}

// Confirm asks message until the reply is a recognised yes or no.
func (p *Prompter) Confirm(ctx context.Context, message string) (bool, error) {
	label := fmt.Sprintf("%s (%s|%s) ", message, Yes, No)
	for {
		answer, err := p.ReadLine(ctx, label)
		if err != nil {
			return false, err
		}
		if yes, ok := NormalizeYesNo(answer); ok {
			return yes, nil
		}
		_, _ = fmt.Fprintf(p.out, "Please answer %s or %s.\n", Yes, No)
	}
}

// Confirm is a one-shot Prompter.Confirm.
func Confirm(ctx context.Context, in io.Reader, out io.Writer, message string) (bool, error) {
	return NewPrompter(in, out).Confirm(ctx, message)
}
