package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.pilab.hu/vident/services"
)

// appSummary is the listing view; the stored secret hash stays out of it.
type appSummary struct {
	ID           string   `yaml:"client_id"`
	Name         string   `yaml:"name"`
	Public       bool     `yaml:"public"`
	RedirectURIs []string `yaml:"redirect_uris"`
	CreatedAt    string   `yaml:"created_at"`
}

var appCmd = &cobra.Command{
	Use:     "app",
	Short:   "Manage applications",
	Aliases: []string{"apps", "application"},
}

var appRegisterCmd = &cobra.Command{
	Use:   "register [DEVELOPER_ID]",
	Short: "Register an application owned by a developer account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		redirects, _ := cmd.Flags().GetStringSlice("redirect-uri")
		privacy, _ := cmd.Flags().GetString("privacy-policy")
		tos, _ := cmd.Flags().GetString("terms-of-service")
		public, _ := cmd.Flags().GetBool("public")

		return withStack(cmd.Context(), func(s *stack) error {
			creds, err := s.Applications.Register(cmd.Context(), args[0], services.RegisterApplicationRequest{
				Name:           name,
				Description:    description,
				RedirectURIs:   redirects,
				PrivacyPolicy:  privacy,
				TermsOfService: tos,
				Public:         public,
			})
			if err != nil {
				return fmt.Errorf("application registration failed: %w", err)
			}
			return printYAML(cmd, creds)
		})
	},
}

var appListCmd = &cobra.Command{
	Use:   "list [DEVELOPER_ID]",
	Short: "List the applications of a developer account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			apps, err := s.Applications.ListByDeveloper(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := make([]appSummary, 0, len(apps))
			for _, a := range apps {
				out = append(out, appSummary{
					ID:           a.ID,
					Name:         a.Name,
					Public:       a.Public,
					RedirectURIs: a.RedirectURIs,
					CreatedAt:    a.CreatedAt.UTC().Format(timeLayout),
				})
			}
			return printYAML(cmd, out)
		})
	},
}

var appRotateSecretCmd = &cobra.Command{
	Use:   "rotate-secret [APP_ID]",
	Short: "Issue a new client secret for a confidential application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			creds, err := s.Applications.RegenerateSecret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, creds)
		})
	},
}

func init() {
	appRegisterCmd.Flags().String("name", "", "application name")
	appRegisterCmd.Flags().String("description", "", "application description")
	appRegisterCmd.Flags().StringSlice("redirect-uri", nil, "allowed redirect URI (repeatable)")
	appRegisterCmd.Flags().String("privacy-policy", "", "privacy policy URL")
	appRegisterCmd.Flags().String("terms-of-service", "", "terms of service URL")
	appRegisterCmd.Flags().Bool("public", false, "register a public client without a secret")
	_ = appRegisterCmd.MarkFlagRequired("name")

	appCmd.AddCommand(appRegisterCmd, appListCmd, appRotateSecretCmd)
	rootCmd.AddCommand(appCmd)
}
