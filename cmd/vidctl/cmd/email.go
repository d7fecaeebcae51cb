package cmd

import (
	"github.com/spf13/cobra"

	"go.pilab.hu/vident/mailcrypt"
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Work with the encrypted email index",
}

var emailLookupCmd = &cobra.Command{
	Use:   "lookup [ADDRESS]",
	Short: "Show the stored ciphertext of an address and whether it is taken",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")

		cipher, err := mailcrypt.Open(appConfig.Crypto.KeyFile, appConfig.Crypto.TableFile)
		if err != nil {
			return err
		}
		ciphertext, err := cipher.Encrypt(args[0])
		if err != nil {
			return err
		}
		if offline {
			return printYAML(cmd, map[string]any{"ciphertext": ciphertext})
		}

		return withStack(cmd.Context(), func(s *stack) error {
			available, err := s.Accounts.EmailAvailable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]any{"ciphertext": ciphertext, "taken": !available})
		})
	},
}

var emailDecryptCmd = &cobra.Command{
	Use:   "decrypt [CIPHERTEXT]",
	Short: "Recover the address behind a stored ciphertext",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cipher, err := mailcrypt.Open(appConfig.Crypto.KeyFile, appConfig.Crypto.TableFile)
		if err != nil {
			return err
		}
		email, err := cipher.Decrypt(args[0])
		if err != nil {
			return err
		}
		return printYAML(cmd, map[string]string{"email": email})
	},
}

func init() {
	emailLookupCmd.Flags().Bool("offline", false, "only print the ciphertext, do not query the store")
	emailCmd.AddCommand(emailLookupCmd, emailDecryptCmd)
	rootCmd.AddCommand(emailCmd)
}
