package main

import (
	"github.com/spf13/cobra"

	"github.com/oriys/lambdakit/internal/output"
)

func assumeRoleCmd() *cobra.Command {
	var (
		role        roleFlags
		showSecrets bool
		asEnv       bool
	)

	cmd := &cobra.Command{
		Use:   "assume-role <role-arn>",
		Short: "Exchange a role ARN for temporary credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role.arn = args[0]
			r := role.resolve(app.cfg.Role)

			creds, err := assumeRole(cmd.Context(), app.cfg, r)
			if err != nil {
				return err
			}

			if asEnv {
				app.printer.PrintEnv(*creds)
				return nil
			}
			return app.printer.PrintCredentials(output.NewCredentialsView(*creds, showSecrets))
		},
	}

	cmd.Flags().StringVar(&role.sessionName, "session-name", "", "Role session name (generated when empty)")
	cmd.Flags().DurationVar(&role.duration, "duration", 0, "Requested session duration (15m-12h)")
	cmd.Flags().StringVar(&role.externalID, "external-id", "", "External ID required by the role's trust policy")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the secret key and session token unmasked")
	cmd.Flags().BoolVar(&asEnv, "env", false, "Print shell export lines instead of a table")

	return cmd
}
