package hwtesttest

import (
	"io"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/interaction"
)

// Answer is one operator reply; Before runs just before it is typed.
type Answer struct {
	Text   string
	Before func()
}

// Operator feeds one reply per Read so that hooks fire in step with the
// questions. It reports EOF once the replies run out.
type Operator struct {
	Answers []Answer
}

func (o *Operator) Read(p []byte) (int, error) {
	if len(o.Answers) == 0 {
		return 0, io.EOF
	}
	a := o.Answers[0]
	o.Answers = o.Answers[1:]
	if a.Before != nil {
		a.Before()
	}
	return copy(p, a.Text+"\n"), nil
}

// Answer puts a scripted operator at the keyboard.
func (h *Host) Answer(answers ...Answer) {
	h.Env.Prompter = interaction.NewPrompter(&Operator{Answers: answers}, io.Discard)
}
