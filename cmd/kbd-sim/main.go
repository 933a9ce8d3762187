// Command kbd-sim runs the keyboard firmware stack on the host and drives
// it from a prompt or a script.
//
//	kbd-sim                  interactive
//	kbd-sim -script taps.txt run a script, one command per line
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"kbdcode-go/services/firmware"
	"kbdcode-go/x/logx"
)

func main() {
	device := flag.String("device", "sim", "embedded config to load")
	script := flag.String("script", "", "run commands from file instead of a prompt")
	level := flag.String("log", "", "log level override (debug, info, warn, error, off)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *device, *script, *level); err != nil {
		fmt.Fprintln(os.Stderr, "kbd-sim:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, device, script, level string) error {
	st, err := firmware.Start(ctx, device)
	if err != nil {
		return err
	}
	if st.Keymap == nil {
		return errors.New(device + " has no keymap to drive")
	}
	if level != "" {
		logx.SetLevel(logx.ParseLevel(level))
	}

	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return err
		}
		defer f.Close()
		s := newSim(st, os.Stdout)
		s.watch(ctx)
		return runScript(ctx, s, f)
	}
	return interactive(ctx, st)
}

// runScript stops at the first failing line. Blank lines and # comments
// are skipped.
func runScript(ctx context.Context, s *sim, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

func interactive(ctx context.Context, st *firmware.Stack) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kbd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	logx.SetOutput(rl.Stdout())
	defer logx.SetOutput(nil)

	s := newSim(st, rl.Stdout())
	s.watch(ctx)
	s.printHelp()
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil // EOF
		}
		if err := s.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(rl.Stdout(), "error:", err)
		}
	}
	return nil
}
