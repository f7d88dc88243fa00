// Package interactive provides the rta interactive shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"

	"github.com/georgejecook/roku-test-automation/cmd/rta/commands"
)

// Shell reads commands from a terminal and runs them against env.
type Shell struct {
	env    *commands.Env
	status func() string
	rl     *readline.Instance
}

// New creates a shell. status reports the connection state for the status
// command and may be nil.
func New(env *commands.Env, status func() string) (*Shell, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands.All())+3)
	for _, c := range commands.All() {
		items = append(items, readline.PcItem(c.Name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("status"), readline.PcItem("quit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rta> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{env: env, status: status, rl: rl}
	env.Out = rl.Stdout()
	return s, nil
}

// Stdout returns a writer that does not disturb the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that does not disturb the prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads and runs commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if !s.Exec(ctx, line) {
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one input line. It returns false when the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	args, err := splitLine(line)
	if err != nil {
		fmt.Fprintf(s.env.Out, "Error: %v\n", err)
		return true
	}
	if len(args) == 0 {
		return true
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status":
		if s.status != nil {
			fmt.Fprintln(s.env.Out, s.status())
		}
	case "quit", "exit", "q":
		return false
	default:
		err := commands.Run(ctx, s.env, cmd, args[1:])
		switch {
		case errors.Is(err, commands.ErrUnknownCommand):
			fmt.Fprintf(s.env.Out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		case err != nil:
			fmt.Fprintf(s.env.Out, "Error: %v\n", err)
		}
	}
	return true
}

// splitLine splits input like a POSIX shell so JSON values can be quoted.
func splitLine(line string) ([]string, error) {
	return shellwords.Parse(strings.TrimSpace(line))
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.env.Out, "\nCommands:")
	for _, c := range commands.All() {
		fmt.Fprintf(s.env.Out, "  %-58s - %s\n", c.Usage(), c.Summary)
	}
	fmt.Fprintf(s.env.Out, "  %-58s - %s\n", "status", "Show connection status")
	fmt.Fprintf(s.env.Out, "  %-58s - %s\n", "help", "Show this help")
	fmt.Fprintf(s.env.Out, "  %-58s - %s\n", "quit", "Exit the shell")
	fmt.Fprintln(s.env.Out, `
  Bases are "global" or "scene". Values are JSON; quote them when they
  contain spaces, e.g. set global user '{"name": "bob"}'.`)
}
