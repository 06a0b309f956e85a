// Command rtpmedia converts between elementary streams and RTP captures.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("rtpmedia failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "rtpmedia",
		Usage:   "RTP packetizing and depacketizing of H.264, H.265 and AAC",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logging (also DEBUG=1)",
			},
		},
		Before: func(c *cli.Context) error {
			setupLogging(c.Bool("debug") || os.Getenv("DEBUG") != "")
			return nil
		},
		Commands: []*cli.Command{
			extractCommand(),
			packetizeCommand(),
			sdpCommand(),
		},
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
