package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daka/internal/notify"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification to every configured channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			notifier, err := notify.FromConfig(cfg.Notification)
			if err != nil {
				return withExitCode(exitConfig, err)
			}
			out := cmd.OutOrStdout()
			if _, ok := notifier.(*notify.NoOpNotifier); ok {
				fmt.Fprintln(out, "No notification channel configured (set WXPUSHER_APP_TOKEN and WXPUSHER_UID, or DAKA_BARK_URL)")
				return nil
			}

			now := time.Now().In(cfg.Location).Format("2006-01-02 15:04:05")
			body := fmt.Sprintf("## 通知测试\n\n- 时间: %s\n- 账号: %s\n", now, cfg.Credentials.Username)
			if err := notifier.Send(cmd.Context(), "打卡通知测试", body); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	})
	return cmd
}
