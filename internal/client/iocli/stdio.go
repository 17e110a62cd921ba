package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio - IO поверх терминала
type Stdio struct {
	in    *bufio.Reader
	out   io.Writer
	inFd  int
	isTTY bool
}

// NewStdio создает IO для os.Stdin/os.Stdout
func NewStdio() IO {
	return NewStreams(os.Stdin, os.Stdout)
}

// NewStreams создает IO для произвольных потоков.
// Пароль читается без эха, только если in - терминал.
func NewStreams(in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.inFd = int(f.Fd())
		s.isTTY = true
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

// ReadInput читает строку; один буфер на все вызовы, чтобы не терять ввод
func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// ReadPassword читает пароль без эха (в терминале) или строку из потока
func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if !s.isTTY {
		line, err := s.ReadInput(prompt)
		s.Println("")
		return line, err
	}
	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(s.inFd)
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
