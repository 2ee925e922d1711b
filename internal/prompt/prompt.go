package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/oshokin/modsync/internal/logger"
)

// Confirmer answers yes/no questions before an action is applied.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// choices is printed after every question.
const choices = "[Y] Yes  [A] Yes to All  [N] No  [L] No to All (default is \"N\"): "

// answer is a remembered "to All" decision.
type answer int

const (
	answerNone answer = iota
	answerYesToAll
	answerNoToAll
)

// Terminal prompts on an interactive terminal.
type Terminal struct {
	// in is where answers are read from.
	in *bufio.Reader
	// out is where questions are written.
	out io.Writer
	// interactive tells whether in is attached to a terminal.
	interactive bool

	mu         sync.Mutex
	remembered answer
}

// NewTerminal creates a confirmer reading answers from in and writing questions to out.
func NewTerminal(in io.Reader, out io.Writer, interactive bool) *Terminal {
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

// NewStdio creates a confirmer bound to the process stdin and stderr.
func NewStdio() *Terminal {
	return NewTerminal(os.Stdin, os.Stderr, IsInteractive(os.Stdin))
}

// IsInteractive reports whether the file is a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd())) //nolint:gosec // Fd fits in int on supported platforms.
}

// Confirm asks the question and returns the user's answer.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.remembered {
	case answerYesToAll:
		return true, nil
	case answerNoToAll:
		return false, nil
	case answerNone:
	}

	if !t.interactive {
		logger.WarnKV(ctx, "Cannot prompt without a terminal, declining; use --force to skip confirmation",
			"question", question)

		return false, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if _, err := fmt.Fprintf(t.out, "%s\n%s", question, choices); err != nil {
			return false, fmt.Errorf("write prompt: %w", err)
		}

		line, err := t.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read answer: %w", err)
		}

		confirmed, known := t.interpret(line)
		if known {
			return confirmed, nil
		}

		if errors.Is(err, io.EOF) {
			return false, nil
		}
	}
}

// interpret maps an answer to a decision; known is false for unrecognized input.
func (t *Terminal) interpret(line string) (confirmed, known bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, true
	case "a", "all", "yes to all":
		t.remembered = answerYesToAll
		return true, true
	case "", "n", "no":
		return false, true
	case "l", "no to all":
		t.remembered = answerNoToAll
		return false, true
	default:
		return false, false
	}
}

// Always is a Confirmer returning a fixed answer.
type Always bool

// Confirm returns the fixed answer.
func (a Always) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}
