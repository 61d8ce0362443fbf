// internal/link/receiver.go
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"meal-scale/internal/meallog"
	"meal-scale/internal/models"
)

// Sink stores decoded meals.
type Sink interface {
	SaveMeals(ctx context.Context, meals []models.Meal) error
}

// Receiver answers save requests on the companion side.
type Receiver struct {
	Sink     Sink
	Groups   meallog.GroupLookup
	Location *time.Location
	Logger   *slog.Logger
}

func (r *Receiver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Receiver) decoder() *meallog.Decoder {
	opts := []meallog.Option{meallog.WithLogger(r.logger())}
	if r.Groups != nil {
		opts = append(opts, meallog.WithGroups(r.Groups))
	}
	if r.Location != nil {
		opts = append(opts, meallog.WithLocation(r.Location))
	}
	return meallog.NewDecoder(opts...)
}

// Serve handles save requests on conn until it is closed or ctx ends. A
// transmission cut short stores nothing.
func (r *Receiver) Serve(ctx context.Context, conn io.ReadWriter) error {
	log := r.logger()
	lr := meallog.NewLineReader(conn)
	var dec *meallog.Decoder

	for {
		raw, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, meallog.ErrLineTooLong) {
			return fmt.Errorf("read link: %w", err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if err != nil {
			if dec == nil {
				log.Warn("link: ignoring oversized line outside transmission", "bytes", len(raw))
			} else if serr := dec.Skip(raw, err); serr != nil {
				log.Debug("link: recovered record problem", "error", serr)
			}
			continue
		}
		line := strings.TrimSpace(raw)

		if dec == nil {
			switch line {
			case "":
			case CmdSave:
				dec = r.decoder()
			default:
				log.Warn("link: ignoring line outside transmission", "line", line)
			}
			continue
		}

		if err := dec.Feed(line); err != nil {
			log.Debug("link: recovered record problem", "error", err)
		}
		if !dec.Done() {
			continue
		}

		ack := r.commit(ctx, dec)
		dec = nil
		if _, err := io.WriteString(conn, ack+"\n"); err != nil {
			return fmt.Errorf("write acknowledgment: %w", err)
		}
	}
	if dec != nil {
		return fmt.Errorf("transmission cut short: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

func (r *Receiver) commit(ctx context.Context, dec *meallog.Decoder) string {
	log := r.logger()
	if n := dec.Discarded(); n > 0 {
		log.Warn("link: rejecting transmission with unclosed meal", "discarded", n)
		return AckError + ",comida incompleta"
	}
	meals := dec.Meals()
	if len(meals) == 0 {
		return AckError + ",sin comidas"
	}
	if err := r.Sink.SaveMeals(ctx, meals); err != nil {
		log.Error("link: storing meals failed", "error", err)
		return AckError + ",almacenamiento"
	}
	log.Info("link: meals stored", "meals", len(meals))
	return AckOK
}

// ListenAndServe accepts link connections on addr until ctx is cancelled.
func (r *Receiver) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return r.ServeListener(ctx, ln)
}

// ServeListener is ListenAndServe on an existing listener, which it closes.
func (r *Receiver) ServeListener(ctx context.Context, ln net.Listener) error {
	log := r.logger()
	log.Info("link: listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			closeOnDone := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnDone()
			if err := r.Serve(ctx, conn); err != nil && ctx.Err() == nil {
				log.Warn("link: connection ended", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// Dial opens a link to a companion listening on addr.
func Dial(ctx context.Context, addr string, sender Sender) (*Client, net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial companion %s: %w", addr, err)
	}
	return &Client{Conn: conn, Sender: sender}, conn, nil
}
