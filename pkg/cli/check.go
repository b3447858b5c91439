package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCheckCommand() *cobra.Command {
	var requireMail bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report configuration problems without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			warnings, err := cfg.Check(requireMail)
			if err != nil {
				return err
			}
			if len(warnings) == 0 {
				_, _ = fmt.Fprintln(rt.writer, "configuration OK")
				return nil
			}
			for _, w := range warnings {
				_, _ = fmt.Fprintf(rt.writer, "warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&requireMail, "require-mail-credentials", getEnvBool("REQUIRE_MAIL_CREDENTIALS", false),
		"Treat missing SMTP credentials as an error")
	return cmd
}
