package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// prompter reads answers from the command's stdin. Secrets are read without
// echo when stdin is a terminal and as plain lines otherwise.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	text, err := p.reader.ReadString('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && text != "":
		// last line without a trailing newline
	case errors.Is(err, io.EOF):
		return "", fmt.Errorf("%s no input", strings.TrimSpace(label))
	default:
		return "", err
	}
	return strings.TrimRight(text, "\r\n"), nil
}

func (p *prompter) secret(label string) (string, error) {
	file, ok := p.in.(*os.File)
	if !ok || !isatty.IsTerminal(file.Fd()) {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	raw, err := term.ReadPassword(int(file.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
