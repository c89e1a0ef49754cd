package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
)

const consoleHelp = `commands:
  start <actor>             open a casting session
  partial <actor> <text>    feed an interim hypothesis
  final <actor> <text>      feed a committed hypothesis
  loud <actor> <0..1>       add a loudness sample
  finalize <actor>          resolve now instead of waiting for silence
  restart <actor>           clear the accumulated text
  cancel <actor>            cancel the session
  tick <actor>              end the actor's turn
  cooldowns <actor>         show remaining cooldowns
  rank <actor> <text>       show the best candidates for text
  round                     cancel every session
  help                      show this text`

// rankLimit caps the rank command's output.
const rankLimit = 5

var errUnknownCommand = errors.New("unknown command")

// runConsole reads one command per line from r until r is exhausted or ctx
// is done. Command errors are printed and do not stop the loop.
func (a *App) runConsole(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	slog.Info("app: console input ready, type help for commands")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("app: read console: %w", err)
					}
				default:
				}
				return nil
			}
			if err := a.handleCommand(ctx, line); err != nil {
				a.printf("error: %v\n", err)
			}
		}
	}
}

// handleCommand executes one console line.
func (a *App) handleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help":
		a.printf("%s\n", consoleHelp)
		return nil
	case "round":
		a.printf("round ended, %d sessions cancelled\n", a.caster.EndRound())
		return nil
	}

	if len(fields) < 2 {
		return fmt.Errorf("%s: missing actor", cmd)
	}
	actor := fields[1]
	rest := strings.Join(fields[2:], " ")

	switch cmd {
	case "start":
		s, err := a.caster.Begin(actor)
		if err != nil {
			return err
		}
		a.printf("%s is listening (%s)\n", actor, s.ID())
	case "partial", "final":
		return a.caster.Ingest(actor, rest, cmd == "final")
	case "loud":
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return fmt.Errorf("loud: %w", err)
		}
		a.caster.AddLoudness(actor, v)
	case "finalize":
		_, err := a.caster.Finalize(ctx, actor)
		return err
	case "restart":
		return a.caster.Restart(actor)
	case "cancel":
		if err := a.caster.Cancel(actor); err != nil {
			return err
		}
		a.printf("%s stopped casting\n", actor)
	case "tick":
		a.caster.Tick(actor)
	case "cooldowns":
		snap := a.caster.Cooldowns().Snapshot(actor)
		if len(snap) == 0 {
			a.printf("%s has nothing on cooldown\n", actor)
			return nil
		}
		for _, id := range slices.Sorted(maps.Keys(snap)) {
			a.printf("  %s: %d turns\n", id, snap[id])
		}
	case "rank":
		cands := a.caster.Candidates(actor, rest, rankLimit)
		if len(cands) == 0 {
			a.printf("no candidate for %q\n", rest)
			return nil
		}
		for i, r := range cands {
			a.printf("  %d. %s (%s) %.2f\n", i+1, r.Entry.ID, r.Entry.DisplayName, r.Confidence)
		}
	default:
		return fmt.Errorf("%w %q, type help", errUnknownCommand, cmd)
	}
	return nil
}

func (a *App) printf(format string, args ...any) {
	_, _ = io.WriteString(a.out, fmt.Sprintf(format, args...))
}
