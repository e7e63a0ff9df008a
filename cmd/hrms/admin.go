package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/hrms/internal/application"
)

// cliPrincipal authorizes account bootstrapping from the command line.
var cliPrincipal = application.Principal{UserID: "cli", Role: application.RoleAdmin}

func newCreateAdminCommand(root *rootOptions) *cobra.Command {
	var input application.CreateEmployeeInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long:  "Create an administrator account. The password is read from --password or HRMS_ADMIN_PASSWORD.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input.Password == "" {
				input.Password = os.Getenv("HRMS_ADMIN_PASSWORD")
			}
			if strings.TrimSpace(input.Email) == "" || input.Password == "" {
				return errors.New("--email and a password are required")
			}
			input.Role = application.RoleAdmin

			ctx := cmd.Context()
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			storage, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			if _, err := storage.Migrate(ctx, logger); err != nil {
				return err
			}
			user, err := newEmployeeService(storage, logger).Create(ctx, cliPrincipal, input)
			if err != nil {
				var vErr *application.ValidationError
				if errors.As(err, &vErr) {
					return fmt.Errorf("create admin: %s", strings.Join(fieldMessages(vErr), "; "))
				}
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Email, "email", "", "login email")
	cmd.Flags().StringVar(&input.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&input.Department, "department", "", "department")
	return cmd
}

func fieldMessages(vErr *application.ValidationError) []string {
	msgs := make([]string, 0, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	return msgs
}
