// internal/link/link.go

// Package link frames a finished meal for the trip from the scale to the
// companion device:
//
//	GUARDAR
//	<meal records>
//	FIN-TRANSMISION
//
// answered by a single OK or ERROR[,reason] line. The byte transport is
// anything that reads and writes; the companion listens on TCP.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"meal-scale/internal/meallog"
)

const (
	CmdSave  = "GUARDAR"
	AckOK    = "OK"
	AckError = "ERROR"

	DefaultAckTimeout = 30 * time.Second
)

var (
	ErrAckTimeout = errors.New("no acknowledgment from companion")
	ErrRejected   = errors.New("companion rejected meal")
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Sender writes save requests and waits for their acknowledgment.
type Sender struct {
	AckTimeout time.Duration
}

// Save sends lines framed as one save request. A missing acknowledgment and
// an ERROR reply both come back as errors; the caller must assume nothing
// was stored. The timeout and ctx are only enforced when rw has
// SetDeadline, as a net.Conn does. For repeated saves on one connection use
// a Client, which keeps a single reader.
func (s Sender) Save(ctx context.Context, rw io.ReadWriter, lines []string) error {
	return s.save(ctx, rw, bufio.NewReader(rw), lines)
}

func (s Sender) save(ctx context.Context, rw io.ReadWriter, br *bufio.Reader, lines []string) error {
	timeout := s.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAckTimeout, err)
	}

	var b strings.Builder
	b.WriteString(CmdSave + "\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(meallog.TagEndTransmission + "\n")

	if dl, ok := rw.(deadliner); ok {
		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = dl.SetDeadline(deadline)

		// Cancellation pulls the deadline into the past so the blocked
		// read or write returns on this goroutine.
		fired := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			_ = dl.SetDeadline(time.Unix(1, 0))
			close(fired)
		})
		defer func() {
			if !stop() {
				<-fired
			}
			_ = dl.SetDeadline(time.Time{})
		}()
	}

	// Whatever is still buffered belongs to an earlier request.
	if n := br.Buffered(); n > 0 {
		_, _ = br.Discard(n)
	}

	if _, err := io.WriteString(rw, b.String()); err != nil {
		return s.failure(ctx, fmt.Errorf("write save request: %w", err))
	}
	line, err := br.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return s.failure(ctx, fmt.Errorf("read acknowledgment: %w", err))
	}
	return parseAck(strings.TrimSpace(line))
}

func (s Sender) failure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrAckTimeout, ctx.Err())
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", ErrAckTimeout, err)
	}
	return err
}

func parseAck(line string) error {
	if line == AckOK {
		return nil
	}
	if line == AckError || strings.HasPrefix(line, AckError+",") {
		reason := strings.TrimPrefix(strings.TrimPrefix(line, AckError), ",")
		if reason == "" {
			return ErrRejected
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	return fmt.Errorf("%w: unexpected acknowledgment %q", ErrRejected, line)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Client binds a Sender to one connection and owns its reader, so an ack
// that arrives after a failed attempt is never read by a stray goroutine.
// A Client is not safe for concurrent use.
type Client struct {
	Conn   io.ReadWriter
	Sender Sender

	br *bufio.Reader
}

// Transmit sends one finished meal.
func (c *Client) Transmit(ctx context.Context, lines []string) error {
	if c.br == nil {
		c.br = bufio.NewReader(c.Conn)
	}
	return c.Sender.save(ctx, c.Conn, c.br, lines)
}
