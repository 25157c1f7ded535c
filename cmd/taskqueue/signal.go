package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// runUntilSignal runs fn with a context cancelled on SIGINT/SIGTERM.
// On a clean return it passes fn's error straight through; on a
// signalled shutdown it exits the process with the received signal
// number, matching how a supervised worker reports why it stopped.
func runUntilSignal(parent context.Context, fn func(ctx context.Context) error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var received os.Signal
	go func() {
		select {
		case s := <-sigCh:
			received = s
			cancel()
		case <-ctx.Done():
		}
	}()

	err := fn(ctx)
	if received != nil {
		if sig, ok := received.(syscall.Signal); ok {
			os.Exit(int(sig))
		}
	}
	return err
}
