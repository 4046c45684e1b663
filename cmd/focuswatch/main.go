package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focusroom/internal/hub"
	"focusroom/internal/logging"
	"focusroom/internal/roomsync"
)

type watchOptions struct {
	server   string
	roomCode string
	logLevel string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &watchOptions{}
	rootCmd := &cobra.Command{
		Use:   "focuswatch",
		Short: "Watch who is focusing in a room",
		Long: `focuswatch prints a room's live members every time the roster changes.

Use "pull" to poll the presence endpoint, or "push" to follow the WebSocket
channel as a room member.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", "http://localhost:8080", "Base URL of the focusroom server")
	rootCmd.PersistentFlags().StringVarP(&opts.roomCode, "room", "r", "", "Room code to watch")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	_ = rootCmd.MarkPersistentFlagRequired("room")

	rootCmd.AddCommand(buildPullCmd(opts), buildPushCmd(opts))
	return rootCmd
}

func buildPullCmd(opts *watchOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Poll the presence endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(opts.logLevel, "text")
			poller := roomsync.NewPoller(opts.server, opts.roomCode, roomsync.PollerOptions{
				Interval: interval,
				Logger:   logger,
			})
			return watch(cmd.OutOrStdout(), poller)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", roomsync.DefaultPollInterval, "Polling interval")
	return cmd
}

func buildPushCmd(opts *watchOptions) *cobra.Command {
	var join hub.JoinRoomPayload
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Join the room over WebSocket and follow its events",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(opts.logLevel, "text")
			join.RoomCode = opts.roomCode
			sub, err := roomsync.NewSubscriber(opts.server, join, roomsync.SubscriberOptions{Logger: logger})
			if err != nil {
				return err
			}
			return watch(cmd.OutOrStdout(), sub)
		},
	}
	cmd.Flags().StringVarP(&join.UserID, "user", "u", "", "User id to join as")
	cmd.Flags().StringVar(&join.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&join.Color, "color", "", "Avatar color")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func watch(out io.Writer, channel roomsync.Channel) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := channel.Run(ctx, func(snapshot roomsync.Snapshot) {
		fmt.Fprintln(out, formatSnapshot(snapshot))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func formatSnapshot(s roomsync.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s via %s: %d live", s.AsOf.Local().Format("15:04:05"), s.RoomCode, s.Source, len(s.Members))
	if s.Degraded {
		fmt.Fprintf(&b, " (stale: %v)", s.Err)
	}
	for _, m := range s.Members {
		state := "idle"
		if m.IsFocusing {
			state = "focusing"
		}
		fmt.Fprintf(&b, "\n  %-20s %-8s %s total", m.Name, state, time.Duration(m.CurrentFocusTime)*time.Second)
	}
	return b.String()
}
