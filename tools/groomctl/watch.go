package main

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/relayclient"
	"github.com/md-rashed-zaman/groombook/libs/session"
	"github.com/spf13/cobra"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print relay frames for a scope (business:<id>, customer:<id>, recipient:<id>)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := changefeed.ParseScope(scope)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			relay := relayclient.NewRelay(relayclient.RelayConfig{URL: g.relayURL, Token: g.token, Logger: slog.Default()})
			unsubscribe := relay.Subscribe(ctx, s, func(m changefeed.Message) {
				_ = writeJSON(out, m)
			}, relayclient.OnReconnect(func() {
				fmt.Fprintln(cmd.ErrOrStderr(), "reconnected; events may have been missed")
			}))
			<-ctx.Done()
			unsubscribe()
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "subscription scope (required)")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

type dashboardSnapshot struct {
	At           time.Time `json:"at"`
	Appointments []string  `json:"appointments"`
	Unread       int       `json:"unread"`
	Cached       bool      `json:"cached,omitempty"`
}

func newDashboardCmd(g *globalFlags) *cobra.Command {
	var (
		identity  session.Identity
		every     time.Duration
		statePath string
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Open a live session and print the cached dashboard periodically",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var store *snapshotStore
			key := snapshotKey(identity.Role, identity.UserID, identity.BusinessID)
			if statePath != "" {
				st, err := openSnapshotStore(statePath)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := printCached(cmd.OutOrStdout(), st, key); err != nil {
					return err
				}
				store = st
			}

			sess, err := session.Open(ctx, session.Config{
				Identity:   identity,
				APIBaseURL: g.apiURL,
				RelayURL:   g.relayURL,
				Token:      g.token,
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				snap := snapshot(sess)
				if err := writeJSON(cmd.OutOrStdout(), snap); err != nil {
					return err
				}
				if store != nil {
					if _, err := store.Save(key, snap); err != nil {
						slog.Warn("dashboard state not saved", "err", err)
					}
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&identity.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&identity.BusinessID, "business", "", "business id for owner sessions")
	cmd.Flags().StringVar(&identity.Role, "role", auth.RoleOwner, "owner or customer")
	cmd.Flags().DurationVar(&every, "every", 5*time.Second, "print interval")
	cmd.Flags().StringVar(&statePath, "state", "", "bolt file holding the last dashboard, shown while the session loads")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printCached(w io.Writer, st *snapshotStore, key string) error {
	last, ok, err := st.Load(key)
	if err != nil || !ok {
		return err
	}
	last.Cached = true
	return writeJSON(w, last)
}

func snapshot(s *session.Session) dashboardSnapshot {
	snap := dashboardSnapshot{At: time.Now().UTC()}
	if c := s.Appointments(); c != nil {
		for _, a := range c.Items() {
			snap.Appointments = append(snap.Appointments,
				fmt.Sprintf("%s %s %s %s (%s)", a.AppointmentDate, a.StartTime, a.PetName, a.ServiceName, a.Status))
		}
	}
	if c := s.Notifications(); c != nil {
		snap.Unread = c.UnreadCount()
	}
	return snap
}
