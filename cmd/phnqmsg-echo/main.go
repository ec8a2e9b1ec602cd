// Command phnqmsg-echo is a minimal demonstration of the message runtime:
// it starts a WebSocketMessageServer that echoes every request back
// (doubling strings, summing number slices) and, with -dial, instead
// connects to one as a client and issues a single request before
// exiting. It exists to exercise message.Connection, wsserver, and
// wstransport end to end; it is not part of the module's importable
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phnq-org/message/message"
	"github.com/phnq-org/message/wsclient"
	"github.com/phnq-org/message/wsserver"
)

func main() {
	addr := flag.String("addr", ":8901", "address to listen on (server mode)")
	dial := flag.String("dial", "", "if set, dial this ws:// URL instead of serving, send one request, and exit")
	salt := flag.String("salt", "", "shared signing salt; empty disables signing")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *dial != "" {
		if err := runClient(*dial, *salt, logger); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(*addr, *salt, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(addr, salt string, logger *slog.Logger) error {
	var connOpts []message.Option
	if salt != "" {
		connOpts = append(connOpts, message.WithSignSalt(salt))
	}

	srv := wsserver.New(wsserver.Config{
		Addr:              addr,
		Paths:             []string{"/echo"},
		Logger:            logger,
		ConnectionOptions: connOpts,
		OnReceive: func(ctx context.Context, payload any) (any, error) {
			return echo(payload)
		},
		OnConnect: func(id string, conn *message.Connection) {
			logger.Info("client connected", slog.String("id", id))
		},
		OnDisconnect: func(id string) {
			logger.Info("client disconnected", slog.String("id", id))
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("listening", slog.String("addr", addr), slog.String("path", "/echo"))
	return srv.ListenAndServe(ctx)
}

func runClient(url, salt string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := wsclient.Options{MaxConnectAttempts: 5, ConnectTimeWait: time.Second}
	if salt != "" {
		opts.ConnectionOptions = append(opts.ConnectionOptions, message.WithSignSalt(salt))
	}

	conn, release, err := wsclient.Get(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer release()

	resp, err := conn.RequestOne(ctx, "hello from phnqmsg-echo")
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	fmt.Println(resp)
	return nil
}

// echo doubles a string payload and sums a []any of numbers; any other
// payload shape is echoed unchanged.
func echo(payload any) (any, error) {
	switch v := payload.(type) {
	case string:
		return v + v, nil
	case []any:
		var sum float64
		for _, item := range v {
			if n, ok := item.(float64); ok {
				sum += n
			}
		}
		return sum, nil
	default:
		return payload, nil
	}
}
