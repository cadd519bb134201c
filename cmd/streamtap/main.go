// streamtap connects to a WebSocket endpoint and streams received frames to
// the console. Lines read from stdin are sent to the endpoint as text frames.
//
// Usage: go run ./cmd/streamtap --url wss://example.com/ws
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jpalmer/wsbridge/internal/connection"
	"github.com/jpalmer/wsbridge/internal/transport"
)

func main() {
	url := flag.String("url", "", "WebSocket URL to connect to")
	header := flag.String("header", "", "extra handshake headers, comma-separated Key:Value pairs")
	verbose := flag.Bool("verbose", false, "print lifecycle events as well as frames")
	flag.Parse()

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: streamtap --url wss://example.com/ws")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	dialer := transport.NewWSDialer(transport.DialConfig{}, logger)
	mgr := connection.NewManager(connection.ManagerConfig{}, dialer, logger)
	defer mgr.Close()

	sub := mgr.Events()
	defer sub.Cancel()

	req := transport.Request{URL: *url, Header: parseHeaders(*header)}
	if err := mgr.Connect(ctx, req); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}

	// Forward stdin lines as text frames
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			pending, err := mgr.SendText(scanner.Text())
			if err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
				continue
			}
			go func() {
				if err := pending.Wait(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
				}
			}()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			mgr.Disconnect(0, "")
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			printEvent(ev, *verbose)
			if ev.Kind == connection.KindDisconnected {
				return
			}
		}
	}
}

func printEvent(ev connection.Event, verbose bool) {
	ts := ev.At.Format(time.RFC3339)

	switch ev.Kind {
	case connection.KindFrame:
		if ev.Frame.Kind == transport.FrameText {
			fmt.Printf("%s %s\n", ts, ev.Frame.Data)
		} else {
			fmt.Printf("%s <binary %d bytes>\n", ts, len(ev.Frame.Data))
		}
	case connection.KindConnected:
		if verbose {
			fmt.Printf("%s connected protocol=%q\n", ts, ev.Protocol)
		}
	case connection.KindDisconnected:
		if verbose {
			fmt.Printf("%s disconnected code=%d reason=%q\n", ts, ev.Code, ev.Reason)
		}
	default:
		if verbose {
			fmt.Printf("%s %s\n", ts, ev.Kind)
		}
	}
}

// parseHeaders turns "Key:Value,Key2:Value2" into an http.Header.
func parseHeaders(s string) http.Header {
	h := make(http.Header)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		h.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return h
}
