package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asrprep/internal/notify"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification channel tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ctx.ensureNotifier(cmd)
			if err != nil {
				return err
			}
			if !notify.Enabled(n) {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are not configured")
				return nil
			}
			host, _ := os.Hostname()
			msg := notify.Message{Title: "asrprep test notification", Body: "sent from " + host}
			if err := n.Notify(cmd.Context(), msg); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	})
	return cmd
}
