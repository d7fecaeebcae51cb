package cmd

import (
	"github.com/spf13/cobra"

	"go.pilab.hu/vident/internal/crypto"
	"go.pilab.hu/vident/log"
	"go.pilab.hu/vident/mailcrypt"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage persisted key material",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the email key, substitution table and hashing pepper if missing",
	Long: `Creates the files named by crypto.key_file, crypto.table_file and
crypto.pepper_file when they do not exist yet. Existing files are validated
and left untouched: replacing them makes every stored ciphertext and hash
unreadable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := appConfig.Crypto
		if _, err := mailcrypt.LoadOrCreateKey(c.KeyFile); err != nil {
			return err
		}
		if _, err := mailcrypt.LoadOrCreateTable(c.TableFile); err != nil {
			return err
		}
		if _, err := crypto.LoadOrCreatePepper(c.PepperFile); err != nil {
			return err
		}

		appLogger.Info(cmd.Context(), "Key material ready", log.Fields{
			"key_file":    c.KeyFile,
			"table_file":  c.TableFile,
			"pepper_file": c.PepperFile,
		})
		return printYAML(cmd, map[string]string{
			"key_file":    c.KeyFile,
			"table_file":  c.TableFile,
			"pepper_file": c.PepperFile,
		})
	},
}

func init() {
	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)
}
