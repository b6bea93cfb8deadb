// Command remindctl is the operator CLI for the war reminder engine.
//
// Usage:
//
//	remindctl remind check
//	remindctl remind run --dry-run
//	remindctl groups list
//	remindctl bindings list --group -1001234567890
//	remindctl bindings remove --group -1001234567890 --user 42
//	remindctl cooldowns list --group -1001234567890
//	remindctl cooldowns prune
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/config"
	"github.com/Alexey3476/CoC-Telegramm/internal/maintenance"
	"github.com/Alexey3476/CoC-Telegramm/internal/reminder"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
	"github.com/Alexey3476/CoC-Telegramm/internal/telegram"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "remindctl",
		Short:        "War reminder operator CLI",
		SilenceUsage: true,
	}
	root.AddCommand(remindCmd())
	root.AddCommand(groupsCmd())
	root.AddCommand(bindingsCmd())
	root.AddCommand(cooldownsCmd())
	return root
}

// --------------------------------------------------------------------------
// remind command
// --------------------------------------------------------------------------

func remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Evaluate or run reminder cycles",
	}
	cmd.AddCommand(remindCheckCmd())
	cmd.AddCommand(remindRunCmd())
	return cmd
}

func remindCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch the current war and report whether a reminder is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			backend := coc.NewClient(cfg.BackendURL, cfg.RequestTimeout, cfg.BackendRequestsPerMinute, logger)
			war, err := backend.War(ctx)
			if err != nil {
				return fmt.Errorf("fetch war: %w", err)
			}

			e := reminder.Evaluate(war, time.Now(), cfg.Reminder.Window)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:         %s\n", war.State)
			fmt.Fprintf(out, "due:           %v (%s)\n", e.Due, e.Reason)
			if e.Remaining != 0 {
				fmt.Fprintf(out, "remaining:     %s\n", e.Remaining.Round(time.Second))
			}
			fmt.Fprintf(out, "window:        %s\n", cfg.Reminder.Window)
			fmt.Fprintf(out, "non-compliant: %d\n", len(e.NonCompliant))
			for _, tag := range e.NonCompliant {
				fmt.Fprintf(out, "  %s\n", tag)
			}
			return nil
		},
	}
}

func remindRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reminder cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				var notifier reminder.Notifier
				if !dryRun {
					if err := cfg.RequireTelegram(); err != nil {
						return err
					}
					tg, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
					if err != nil {
						return fmt.Errorf("connect to telegram: %w", err)
					}
					notifier = telegram.NewSender(tg, logger)
				}

				scheduler := reminder.NewScheduler(reminder.Deps{
					Wars:      coc.NewClient(cfg.BackendURL, cfg.RequestTimeout, cfg.BackendRequestsPerMinute, logger),
					Bindings:  st,
					Cooldowns: st,
					Notifier:  notifier,
				}, reminder.Config{
					Window:   cfg.Reminder.Window,
					Cooldown: cfg.Reminder.Cooldown,
					Workers:  cfg.Reminder.Workers,
					DryRun:   dryRun,
				}, logger)

				res, err := scheduler.RunCycle(ctx)
				if err != nil {
					return err
				}
				printCycle(cmd.OutOrStdout(), res, dryRun)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compose messages without sending or recording cooldowns")
	return cmd
}

func printCycle(out io.Writer, res *reminder.CycleResult, dryRun bool) {
	fmt.Fprintln(out, res.Summary())
	for _, g := range res.Groups {
		status := "sent"
		switch {
		case g.Error != "":
			status = "failed: " + g.Error
		case dryRun && len(g.Recipients) > 0:
			status = "dry-run"
		case !g.Sent:
			status = "nothing to send"
		}
		fmt.Fprintf(out, "group %d: recipients=%d suppressed=%d %s\n",
			g.GroupID, len(g.Recipients), g.Suppressed, status)
		if dryRun && g.Message != "" {
			fmt.Fprintf(out, "%s\n", g.Message)
		}
	}
}

// --------------------------------------------------------------------------
// groups / bindings / cooldowns commands
// --------------------------------------------------------------------------

func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect groups with bindings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List groups with at least one binding",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				ids, err := st.GroupIDs(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})
	return cmd
}

func bindingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "Inspect and edit player bindings",
	}

	var group int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List the bindings of a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				bindings, err := st.ListByGroup(ctx, group)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tNAME\tUSERNAME\tTAG\tBOUND")
				for _, b := range bindings {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						b.UserID, b.DisplayName, b.Username, b.PlayerTag, b.BoundAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().Int64Var(&group, "group", 0, "Telegram chat id")
	_ = list.MarkFlagRequired("group")

	var removeGroup, user int64
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user's binding in a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				removed, err := st.Remove(ctx, user, removeGroup)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintln(cmd.OutOrStdout(), "no binding found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "binding removed")
				return nil
			})
		},
	}
	remove.Flags().Int64Var(&removeGroup, "group", 0, "Telegram chat id")
	remove.Flags().Int64Var(&user, "user", 0, "Telegram user id")
	_ = remove.MarkFlagRequired("group")
	_ = remove.MarkFlagRequired("user")

	cmd.AddCommand(list, remove)
	return cmd
}

func cooldownsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldowns",
		Short: "Inspect and prune reminder cooldowns",
	}

	var group int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List the cooldowns of a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				cooldowns, err := st.Cooldowns(ctx, group)
				if err != nil {
					return err
				}
				ids := make([]int64, 0, len(cooldowns))
				for id := range cooldowns {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

				now := time.Now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tLAST REMINDED\tCOOLING DOWN")
				for _, id := range ids {
					last := cooldowns[id]
					fmt.Fprintf(tw, "%d\t%s\t%v\n", id, last.Format(time.RFC3339), now.Sub(last) < cfg.Reminder.Cooldown)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().Int64Var(&group, "group", 0, "Telegram chat id")
	_ = list.MarkFlagRequired("group")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cooldowns that can no longer suppress a reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				n, err := maintenance.PruneCooldowns(ctx, st, maintenance.Config{
					Retention: cfg.CooldownRetention,
					Cooldown:  cfg.Reminder.Cooldown,
				}, time.Now(), logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d cooldowns\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(list, prune)
	return cmd
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func withStore(fn func(ctx context.Context, cfg *config.Config, st store.Store) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, cfg, st)
}
