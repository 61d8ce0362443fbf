// cmd/simulate.go
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"meal-scale/internal/link"
	"meal-scale/internal/scale"
	"meal-scale/internal/session"
)

func newSimulateCmd(a *app) *cobra.Command {
	var companion string

	cmd := &cobra.Command{
		Use:   "simulate <script|->",
		Short: "Drive a scale session from a script of readings and button presses",
		Long: `simulate plays a script through the scale firmware logic. Each line is
either a stable reading in grams ("245.5") or a button name
("start-meal", "start-dish", "select-group 15", "save-dish",
"cancel-dish", "finish-meal", "tare"). Lines starting with # are ignored.

The resulting meal log is printed. With --companion the finished meal is
sent over the link as the scale would.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.validated()
			if err != nil {
				return err
			}
			groups, err := a.groups()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("companion") {
				cfg.Device.Companion = companion
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open script: %w", err)
				}
				defer f.Close()
				in = f
			}

			s := session.New(cfg.Scale, groups, session.WithLogger(a.logger))
			if err := runScript(s, in, cfg.Device.QueueSize, cmd.ErrOrStderr()); err != nil {
				return err
			}

			if err := s.WriteLog(cmd.OutOrStdout()); err != nil {
				return err
			}

			if cfg.Device.Companion == "" {
				return nil
			}
			client, conn, err := link.Dial(cmd.Context(), cfg.Device.Companion, link.Sender{AckTimeout: cfg.Device.AckTimeout})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := s.Transmit(cmd.Context(), client); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "meal sent to %s\n", cfg.Device.Companion)
			return err
		},
	}

	cmd.Flags().StringVar(&companion, "companion", "", "companion link address (device.companion)")
	return cmd
}

// runScript feeds the script through the button queue and the classifier in
// order. Rejected actions are reported on errOut and do not stop the run.
func runScript(s *session.Session, in io.Reader, queueSize int, errOut io.Writer) error {
	q := session.NewButtonQueue(queueSize)
	drain := func() {
		for _, err := range s.Drain(q) {
			fmt.Fprintf(errOut, "rejected: %v\n", err)
		}
	}

	sc := bufio.NewScanner(in)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if mass, err := strconv.ParseFloat(line, 64); err == nil {
			drain()
			res, err := s.Sample(mass)
			if err != nil {
				fmt.Fprintf(errOut, "line %d: %v\n", lineNo, err)
			}
			if res.Event != scale.None {
				fmt.Fprintf(errOut, "line %d: %s %.2f\n", lineNo, res.Event, res.Delta)
			}
			continue
		}

		ev, err := parseButtonLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := q.Push(ev); errors.Is(err, session.ErrQueueFull) {
			drain()
			err = q.Push(ev)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	drain()
	return nil
}

func parseButtonLine(line string) (session.ButtonEvent, error) {
	fields := strings.Fields(line)
	kind, err := session.ParseButton(fields[0])
	if err != nil {
		return session.ButtonEvent{}, err
	}
	ev := session.ButtonEvent{Kind: kind}
	if kind == session.ButtonSelectGroup {
		if len(fields) != 2 {
			return session.ButtonEvent{}, fmt.Errorf("%s needs a group id", fields[0])
		}
		ev.Group, err = strconv.Atoi(fields[1])
		if err != nil {
			return session.ButtonEvent{}, fmt.Errorf("group id %q: %w", fields[1], err)
		}
	} else if len(fields) != 1 {
		return session.ButtonEvent{}, fmt.Errorf("%s takes no argument", fields[0])
	}
	return ev, nil
}
