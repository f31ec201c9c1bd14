// tripcart-watch follows a shopping trip from the terminal. It connects to a
// tripcart server, authenticates, and reprints the list every time another
// device changes it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dukerupert/tripcart/internal/client"
	"github.com/dukerupert/tripcart/internal/logging"
	"github.com/dukerupert/tripcart/internal/protocol"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("tripcart-watch", pflag.ContinueOnError)
	url := flagSet.String("url", "ws://localhost:8080/ws", "server websocket endpoint")
	token := flagSet.String("token", os.Getenv("TRIPCART_TOKEN"), "access token (default $TRIPCART_TOKEN)")
	tripID := flagSet.String("trip", "", "trip to follow; lists trips when empty")
	logLevel := flagSet.String("log-level", "warn", "debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("--token is required")
	}

	logger := logging.Setup(*logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, *url)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send(ctx, protocol.Authenticate{Token: *token}); err != nil {
		return err
	}

	w := &watcher{conn: conn, tripID: *tripID, out: os.Stdout, logger: logger}
	return conn.Run(ctx, func(env protocol.Envelope) { w.handle(ctx, env) })
}

type watcher struct {
	conn   *client.Conn
	view   client.View
	tripID string
	out    io.Writer
	logger *slog.Logger
}

func (w *watcher) handle(ctx context.Context, env protocol.Envelope) {
	if err := w.view.Apply(env); err != nil {
		w.logger.Warn("bad event", "event", env.Event, "error", err)
		return
	}

	switch env.Event {
	case protocol.EventAuthenticated:
		w.logger.Info("authenticated", "user_id", w.view.UserID)
		var cmd protocol.Command = protocol.GetTrips{}
		if w.tripID != "" {
			cmd = protocol.LoadTrip{TripID: w.tripID}
		}
		if err := w.conn.Send(ctx, cmd); err != nil {
			w.logger.Error("send", "error", err)
		}
	case protocol.EventAuthError, protocol.EventError:
		fmt.Fprintf(w.out, "! %s\n", w.view.LastError)
	case protocol.EventTripsList, protocol.EventTripCreated:
		if w.tripID == "" {
			printTrips(w.out, &w.view)
		}
	case protocol.EventTripDeleted:
		if w.tripID != "" && w.view.CurrentTrip == nil {
			fmt.Fprintln(w.out, "trip deleted")
			return
		}
		printTrips(w.out, &w.view)
	case protocol.EventTripItems, protocol.EventItemAdded, protocol.EventItemUpdated, protocol.EventItemDeleted:
		printList(w.out, &w.view)
	}
}

func printTrips(out io.Writer, v *client.View) {
	fmt.Fprintf(out, "\n%d trips\n", len(v.AllTrips))
	for _, t := range v.AllTrips {
		fmt.Fprintf(out, "  %s  %-24s %s\n", t.TripDate, t.TripName, t.ID)
	}
}

func printList(out io.Writer, v *client.View) {
	if v.CurrentTrip == nil {
		return
	}
	total, purchased := v.Counts()
	fmt.Fprintf(out, "\n%s (%s)  %d/%d in cart\n", v.CurrentTrip.TripName, v.CurrentTrip.TripDate, purchased, total)
	for _, g := range v.Groups() {
		fmt.Fprintf(out, "%s %s\n", g.Category.Icon(), g.Category)
		for _, it := range g.Items {
			mark := " "
			if it.Purchased {
				mark = "x"
			}
			fmt.Fprintf(out, "  [%s] %s x%d\n", mark, it.Name, it.Quantity)
		}
	}
}
