// Package shell is the interactive command loop. Commands are multi-word
// names; a typed line resolves to a command by the longest prefix of its
// words that names exactly one command.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"

	"room-triage/utils"
)

// ErrQuit ends the loop.
var ErrQuit = errors.New("quit")

// ErrInvalidCommand is returned by Resolve when no unique command matches.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one entry of the shell. Missing arguments named in Args are
// prompted for before Run is called.
type Command struct {
	Name string
	Help string
	Args []string
	Run  func(ctx context.Context, args []string) error
}

type Shell struct {
	commands []Command
	in       *bufio.Scanner
	out      io.Writer
	logger   *utils.Logger

	start   sync.Once
	lines   chan string
	scanErr error
}

// New creates a shell reading lines from in and writing to out.
func New(in io.Reader, out io.Writer, logger *utils.Logger) *Shell {
	return &Shell{in: bufio.NewScanner(in), out: out, logger: logger, lines: make(chan string)}
}

// Register adds commands in display order. Names must be unique.
func (s *Shell) Register(cmds ...Command) {
	for _, c := range cmds {
		for _, existing := range s.commands {
			if existing.Name == c.Name {
				panic(fmt.Sprintf("shell: command %q registered twice", c.Name))
			}
		}
		s.commands = append(s.commands, c)
	}
}

// Resolve finds the command for line. It tries the whole line first, then
// drops trailing words one by one; the first candidate that equals a command
// name, or is the prefix of exactly one, wins. The dropped words become the
// arguments.
func (s *Shell) Resolve(line string) (*Command, []string, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, nil, ErrInvalidCommand
	}

	for n := len(tokens); n >= 1; n-- {
		prefix := strings.Join(tokens[:n], " ")
		var match *Command
		matches := 0
		for i := range s.commands {
			c := &s.commands[i]
			if c.Name == prefix {
				return c, tokens[n:], nil
			}
			if strings.HasPrefix(c.Name, prefix) {
				match = c
				matches++
			}
		}
		if matches == 1 {
			return match, tokens[n:], nil
		}
	}
	return nil, nil, fmt.Errorf("%w %q", ErrInvalidCommand, line)
}

// Run reads and executes commands until quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	s.PrintCommands()
	for {
		fmt.Fprintln(s.out, strings.Repeat("=", 80))
		fmt.Fprint(s.out, "> ")

		line, ok := s.readLine(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				fmt.Fprintln(s.out)
				return err
			}
			return s.scanErr
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := s.Exec(ctx, line); errors.Is(err, ErrQuit) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Exec resolves and runs one line. Failures are logged, not returned; only
// ErrQuit comes back.
func (s *Shell) Exec(ctx context.Context, line string) (err error) {
	cmd, args, err := s.Resolve(line)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid command '%s'\n", strings.TrimSpace(line))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[shell] %s panicked: %v\n%s", cmd.Name, r, debug.Stack())
			err = nil
		}
	}()

	for len(args) < len(cmd.Args) {
		fmt.Fprintf(s.out, "%s: ", cmd.Args[len(args)])
		v, ok := s.readLine(ctx)
		if !ok {
			return ErrQuit
		}
		args = append(args, strings.TrimSpace(v))
	}

	if err := cmd.Run(ctx, args); err != nil {
		if errors.Is(err, ErrQuit) {
			return ErrQuit
		}
		s.logger.Error("[shell] %s: %v", cmd.Name, err)
	}
	return nil
}

// PrintCommands lists every command with its help text.
func (s *Shell) PrintCommands() {
	fmt.Fprintln(s.out, "Available commands:")
	for _, c := range s.commands {
		usage := c.Name
		for _, a := range c.Args {
			usage += " <" + a + ">"
		}
		fmt.Fprintf(s.out, "%s - %s\n", usage, c.Help)
	}
}

// Out is where commands should print.
func (s *Shell) Out() io.Writer { return s.out }

// readLine waits for the next input line. Input is scanned on its own
// goroutine so a cancelled ctx ends the wait without a newline.
func (s *Shell) readLine(ctx context.Context) (string, bool) {
	s.start.Do(func() {
		go func() {
			defer close(s.lines)
			for s.in.Scan() {
				s.lines <- s.in.Text()
			}
			s.scanErr = s.in.Err()
		}()
	})

	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		return line, ok
	}
}
