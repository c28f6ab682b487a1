package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// LineReader reads one line of input after showing a prompt.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// terminalReader edits lines on a TTY. The terminal is in raw mode only
// while a line is being read so that commands run with normal settings.
type terminalReader struct {
	fd       int
	terminal *term.Terminal
}

func newTerminalReader(in *os.File, out io.Writer) *terminalReader {
	return &terminalReader{
		fd: int(in.Fd()),
		terminal: term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, ""),
	}
}

func (r *terminalReader) ReadLine(prompt string) (string, error) {
	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(r.fd, state) //nolint:errcheck

	r.terminal.SetPrompt(prompt)
	return r.terminal.ReadLine()
}

// plainReader reads from a pipe or file.
type plainReader struct {
	in  *bufio.Reader
	out io.Writer
}

func newPlainReader(in io.Reader, out io.Writer) *plainReader {
	return &plainReader{in: bufio.NewReader(in), out: out}
}

func (r *plainReader) ReadLine(prompt string) (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, prompt)
	}
	line, err := r.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NewLineReader picks terminal line editing when in is a TTY.
func NewLineReader(in io.Reader, out io.Writer) LineReader {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return newTerminalReader(f, out)
	}
	return newPlainReader(in, out)
}
