// Campusly CLI - command line client for Campusly direct messaging
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/akhtararif14-hash/campusly/clients/go/campusly"
)

var (
	baseURL string
	token   string
	selfID  string
	logPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campusly",
		Short: "Command line client for Campusly direct messages",
		Long: `Talks to a Campusly chat server over its REST API and event channel.

Connection settings default to CAMPUSLY_URL, CAMPUSLY_TOKEN and CAMPUSLY_USER.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("CAMPUSLY_URL", "http://localhost:8080"), "Server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CAMPUSLY_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&selfID, "user", os.Getenv("CAMPUSLY_USER"), "Your user id")

	rootCmd.AddCommand(
		healthCmd(),
		statsCmd(),
		usersCmd(),
		conversationsCmd(),
		registerCmd(),
		openCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show messaging totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users [query]",
		Short: "List people you can message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) > 0 {
				query = args[0]
			}
			users, err := newClient().ListUsers(cmd.Context(), query)
			if err != nil {
				return err
			}
			for _, u := range users {
				handle := ""
				if u.Username != "" {
					handle = " (@" + u.Username + ")"
				}
				fmt.Printf("  %s  %s%s\n", u.ID, u.Name, handle)
			}
			return nil
		},
	}
}

func conversationsCmd() *cobra.Command {
	var (
		watch bool
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations, most recent first",
		Long: `Lists your conversations with unread (*) and online (●) markers.

Presence comes from the event channel. With --watch the list is reprinted
whenever a message or presence change arrives, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			ctx := cmd.Context()

			logger, closeLog, err := openLog()
			if err != nil {
				return err
			}
			defer closeLog()

			client := newClient()
			store := campusly.NewConversationStore(client)
			if err := store.Load(ctx); err != nil {
				return err
			}

			list := campusly.NewConversationList(store, selfID, logger)
			manager := campusly.NewConnectionManager(campusly.NewChannel(client.Dialer(), logger))

			// Bound before connecting so the first broadcast is not missed.
			list.Bind(manager.Channel())
			defer list.Unbind()

			if _, err := manager.Acquire(ctx, selfID); err != nil {
				fmt.Fprintf(os.Stderr, "presence unavailable: %v\n", err)
				printConversations(list.Rows())
				return nil
			}
			defer manager.Release()

			select {
			case <-list.PresenceSeen():
			case <-time.After(wait):
				fmt.Fprintln(os.Stderr, "no presence update yet")
			case <-ctx.Done():
				return nil
			}
			printConversations(list.Rows())
			if !watch {
				return nil
			}

			for {
				select {
				case <-list.Updates():
					fmt.Println()
					printConversations(list.Rows())
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and reprint on every change")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long to wait for the first presence update")
	cmd.Flags().StringVar(&logPath, "log", "", "Write debug logs to this file")
	return cmd
}

func printConversations(rows []campusly.ConversationRow) {
	for _, row := range rows {
		unread := " "
		if row.Unread {
			unread = "*"
		}
		online := " "
		if row.Online {
			online = "●"
		}
		preview := row.LastMessage
		if row.LastSenderID == selfID {
			preview = "you: " + preview
		}
		fmt.Printf("%s%s [%s] %s  %s  %s\n",
			unread,
			online,
			row.LastActiveAt.Local().Format("2006-01-02 15:04"),
			row.Other.ID,
			row.Other.Name,
			truncate(preview, 60))
	}
}

func registerCmd() *cobra.Command {
	var req campusly.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Add yourself to the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			user, err := newClient().Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Registered as: %s\n", user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.ProfileImage, "image", "", "Profile image URL")
	return cmd
}

func openCmd() *cobra.Command {
	var mergeEcho bool

	cmd := &cobra.Command{
		Use:   "open <userId>",
		Short: "Open an interactive chat with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}

			logger, closeLog, err := openLog()
			if err != nil {
				return err
			}
			defer closeLog()

			client := newClient()
			channel := campusly.NewChannel(client.Dialer(), logger)
			session, err := campusly.NewSession(campusly.SessionConfig{
				SelfID:        selfID,
				CounterpartID: args[0],
				API:           client,
				Channels:      campusly.NewConnectionManager(channel),
				Logger:        logger,
				MergeEcho:     mergeEcho,
			})
			if err != nil {
				return err
			}
			defer session.Close()

			return runChat(cmd.Context(), session, selfID)
		},
	}
	cmd.Flags().BoolVar(&mergeEcho, "merge-echo", true, "Replace your local copy of a message with the server's echo")
	cmd.Flags().StringVar(&logPath, "log", "", "Write debug logs to this file")
	return cmd
}

func newClient() *campusly.Client {
	return campusly.NewClient(baseURL, token)
}

func requireUser() error {
	if selfID == "" {
		return errors.New("set --user or CAMPUSLY_USER to your user id")
	}
	return nil
}

func openLog() (zerolog.Logger, func(), error) {
	if logPath == "" {
		return zerolog.Nop(), func() {}, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log: %w", err)
	}
	logger := zerolog.New(f).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return logger, func() { f.Close() }, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
