package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go.pilab.hu/vident/domain"
	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/services"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Short:   "Manage accounts",
	Aliases: []string{"accounts"},
}

var accountRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		systemID, _ := cmd.Flags().GetString("id")
		userID, _ := cmd.Flags().GetString("user-id")
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		accountType, _ := cmd.Flags().GetInt("type")
		password, _ := cmd.Flags().GetString("password")

		if systemID == "" {
			systemID = crypto.PrefixedID("acc-")
		}
		if password == "" {
			var err error
			if password, err = promptPassword(cmd); err != nil {
				return err
			}
		}

		return withStack(cmd.Context(), func(s *stack) error {
			profile, err := s.Accounts.Register(cmd.Context(), services.RegisterAccountRequest{
				SystemID:    systemID,
				UserID:      userID,
				Name:        name,
				Email:       email,
				Password:    password,
				AccountType: domain.AccountType(accountType),
			})
			if err != nil {
				return fmt.Errorf("account registration failed: %w", err)
			}
			return printYAML(cmd, profile)
		})
	},
}

var accountGetCmd = &cobra.Command{
	Use:   "get [SYSTEM_ID]",
	Short: "Show an account with its decrypted email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			profile, err := s.Accounts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pseudonyms, err := s.VirtualIDs.ListBySystemID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]any{"account": profile, "virtual_ids": pseudonyms})
		})
	},
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password is required via --password when stdin is not a terminal")
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func init() {
	accountRegisterCmd.Flags().String("id", "", "system ID (generated when empty)")
	accountRegisterCmd.Flags().String("user-id", "", "login handle")
	accountRegisterCmd.Flags().String("name", "", "display name")
	accountRegisterCmd.Flags().String("email", "", "email address")
	accountRegisterCmd.Flags().Int("type", 0, "account type")
	accountRegisterCmd.Flags().String("password", "", "password (prompted when empty)")
	_ = accountRegisterCmd.MarkFlagRequired("user-id")
	_ = accountRegisterCmd.MarkFlagRequired("email")

	accountCmd.AddCommand(accountRegisterCmd, accountGetCmd)
	rootCmd.AddCommand(accountCmd)
}
