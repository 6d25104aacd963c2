package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNoInput = errors.New("no input")

// prompter reads answers from the terminal, hiding secrets when stdin is a TTY.
type prompter struct {
	in     *bufio.Reader
	fd     int
	tty    bool
	errOut io.Writer
}

func newPrompter(in io.Reader, errOut io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), fd: -1, errOut: errOut}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.tty = term.IsTerminal(p.fd)
	}
	return p
}

// Line prints label and returns the trimmed answer.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.errOut, label)
	text, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && text != "") {
		if errors.Is(err, io.EOF) {
			return "", errNoInput
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Secret reads a value without echo when possible.
func (p *prompter) Secret(label string) (string, error) {
	if !p.tty {
		return p.Line(label)
	}

	fmt.Fprint(p.errOut, label)
	raw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.errOut)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Value returns flagValue when set, otherwise prompts for it.
func (p *prompter) Value(flagValue, label string, secret bool) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if secret {
		return p.Secret(label)
	}
	return p.Line(label)
}

// Confirm asks for the exact word and reports whether it was typed.
func (p *prompter) Confirm(label, word string) (bool, error) {
	answer, err := p.Line(label)
	if err != nil {
		return false, err
	}
	return answer == word, nil
}
