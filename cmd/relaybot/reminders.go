package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-relay-bot/internal/app"
)

func newRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect or fire stored reminders",
	}
	cmd.AddCommand(newRemindersListCmd())
	cmd.AddCommand(newRemindersTickCmd())
	return cmd
}

func newRemindersListCmd() *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print reminders from the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)
			backend, err := app.OpenReminderStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close(ctx) }()

			items, err := backend.Store.List(ctx)
			if err != nil {
				return err
			}
			loc := cfg.Location()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = tw.Write([]byte("ID\tCHAT\tTIME\tTYPE\tNOTE\n"))
			for _, r := range items {
				if chatID != 0 && r.ChatID != chatID {
					continue
				}
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.ChatID, r.Time.In(loc).Format(time.DateTime), r.Type, r.Note)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "only show reminders for this chat id")
	return cmd
}

func newRemindersTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass and deliver due reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			res := a.Scheduler.Tick(ctx)
			printf(cmd, "checked=%d due=%d sent=%d deleted=%d rescheduled=%d failed=%d\n",
				res.Checked, res.Due, res.Sent, res.Deleted, res.Rescheduled, res.Failed)
			return a.Close(ctx)
		},
	}
}
