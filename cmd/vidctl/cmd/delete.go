package cmd

import (
	"github.com/spf13/cobra"

	"go.pilab.hu/vident/log"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete accounts or applications with everything bound to them",
}

var deleteAccountCmd = &cobra.Command{
	Use:   "account [SYSTEM_ID]",
	Short: "Delete an account, its applications, pseudonyms and tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			clean, err := s.Cascade.DeleteAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !clean {
				appLogger.Warn(cmd.Context(), "Account deleted with leftovers", log.Fields{"system_id": args[0]})
			}
			return printYAML(cmd, map[string]any{"account": args[0], "clean": clean})
		})
	},
}

var deleteAppCmd = &cobra.Command{
	Use:     "app [APP_ID]",
	Aliases: []string{"application"},
	Short:   "Delete an application, its pseudonyms and tokens",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			clean, err := s.Cascade.DeleteApplication(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !clean {
				appLogger.Warn(cmd.Context(), "Application deleted with leftovers", log.Fields{"app_id": args[0]})
			}
			return printYAML(cmd, map[string]any{"application": args[0], "clean": clean})
		})
	},
}

func init() {
	deleteCmd.AddCommand(deleteAccountCmd, deleteAppCmd)
	rootCmd.AddCommand(deleteCmd)
}
