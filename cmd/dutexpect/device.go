package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/config"
	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/transport"
)

// openSession opens target and wraps it in a session configured from cfg.
// When capture is set, every line is kept in a transcript.
func openSession(ctx context.Context, target string, cfg *config.Config, logger *logrus.Logger, capture bool) (*dut.Session, error) {
	stream, err := transport.Open(ctx, target, cfg.TransportOptions(), logger)
	if err != nil {
		return nil, err
	}

	opts := []dut.Option{
		dut.WithName(stream.Name()),
		dut.WithLogger(logger),
		dut.WithReaderOptions(cfg.ReaderOptions()),
		dut.WithTailLines(cfg.TailLines),
	}
	if capture {
		t, err := dut.NewTranscript(cfg.TranscriptLines)
		if err != nil {
			_ = stream.Close()
			return nil, err
		}
		opts = append(opts, dut.WithTranscript(t))
	}
	return dut.NewSession(stream, opts...), nil
}

// openSessions opens every target, closing the ones already open if one fails.
func openSessions(ctx context.Context, targets []string, cfg *config.Config, logger *logrus.Logger, capture bool) ([]*dut.Session, error) {
	sessions := make([]*dut.Session, 0, len(targets))
	for _, target := range targets {
		s, err := openSession(ctx, target, cfg, logger, capture)
		if err != nil {
			for _, opened := range sessions {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("failed to open %s: %w", target, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// withInterrupt returns a context cancelled on Ctrl+C or SIGTERM.
func withInterrupt(parent context.Context, w io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(w, "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
