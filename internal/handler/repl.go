package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const prompt = "> "

var errUnterminated = errors.New("unterminated quote or escape")

// Run reads commands from in until exit, EOF or ctx cancellation. When in is
// an io.Closer it is closed on return to release the reading goroutine;
// otherwise that goroutine stays blocked until the next line arrives.
func (h *Handler) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if closer, ok := in.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				h.logger.Debug("failed to close input", zap.Error(err))
			}
		}()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	h.HandleHelp()
	for {
		fmt.Fprint(h.out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(h.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}
				return nil
			}
			if !h.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the REPL should go on.
func (h *Handler) Execute(ctx context.Context, line string) bool {
	args, err := splitArgs(line)
	if err != nil {
		fmt.Fprintln(h.out, "Error:", err)
		return true
	}
	if len(args) == 0 {
		return true
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		h.HandleHelp()
	case "register":
		h.HandleRegister(ctx, args)
	case "login":
		h.HandleLogin(ctx, args)
	case "request-truck":
		h.HandleRequestTruck(ctx, args)
	case "orders", "dashboard":
		h.HandleOrders(ctx, args)
	case "logout":
		h.HandleLogout(ctx)
	case "status":
		h.HandleStatus()
	case "exit", "quit":
		fmt.Fprintln(h.out, "Bye.")
		return false
	default:
		fmt.Fprintf(h.out, "Unknown command %q. Type 'help' for the list of commands.\n", cmd)
	}
	return true
}

// splitArgs splits a command line on whitespace. Single and double quotes
// group words; a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminated
	}
	if inWord {
		args = append(args, current.String())
	}
	return args, nil
}
