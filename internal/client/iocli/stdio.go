package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio reads from an input stream and writes to an output stream.
// Password input is hidden only when the input is a terminal.
type Stdio struct {
	in     *bufio.Reader
	out    io.Writer
	inFile *os.File
}

// NewStdio returns IO bound to os.Stdin and os.Stdout
func NewStdio() IO {
	return NewStream(os.Stdin, os.Stdout)
}

// NewStream returns IO over arbitrary streams
func NewStream(in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok {
		s.inFile = f
	}
	return s
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if !s.IsInteractive() {
		return s.ReadInput(prompt)
	}
	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(int(s.inFile.Fd()))
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}

func (s *Stdio) ReadAll() (string, error) {
	data, err := io.ReadAll(s.in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Stdio) IsInteractive() bool {
	return s.inFile != nil && term.IsTerminal(int(s.inFile.Fd()))
}
