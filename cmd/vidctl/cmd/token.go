package cmd

import (
	"github.com/spf13/cobra"

	"go.pilab.hu/vident/services"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Issue and inspect tokens",
	Aliases: []string{"tokens"},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue [APP_ID] [SYSTEM_ID]",
	Short: "Issue a token pair for an account under an application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes, _ := cmd.Flags().GetStringSlice("scope")

		return withStack(cmd.Context(), func(s *stack) error {
			vid, err := s.VirtualIDs.GetOrCreate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			bundle, err := s.Tokens.CreateToken(cmd.Context(), vid, scopes, appNow(), appConfig.TTL())
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]any{
				"virtual_id":    vid,
				"token_type":    bundle.TokenType,
				"access_token":  bundle.AccessToken,
				"refresh_token": bundle.RefreshToken,
				"expires_at": map[string]string{
					"access_token":  bundle.ExpiresAt.AccessToken.UTC().Format(timeLayout),
					"refresh_token": bundle.ExpiresAt.RefreshToken.UTC().Format(timeLayout),
				},
			})
		})
	},
}

var tokenCheckCmd = &cobra.Command{
	Use:   "check [ACCESS_TOKEN]",
	Short: "Check an access token against the required scopes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		accountID, _ := cmd.Flags().GetBool("account-id")

		var opts []services.CheckOption
		if accountID {
			opts = append(opts, services.ReturnAccountID())
		}
		return withStack(cmd.Context(), func(s *stack) error {
			id, err := s.Tokens.Check(cmd.Context(), args[0], scopes, opts...)
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]string{"id": id})
		})
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke [ACCESS_TOKEN]",
	Short: "Revoke a single access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), func(s *stack) error {
			revoked, err := s.Tokens.Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]bool{"revoked": revoked})
		})
	},
}

func init() {
	tokenIssueCmd.Flags().StringSlice("scope", nil, "scope to grant (repeatable)")
	tokenCheckCmd.Flags().StringSlice("scope", nil, "scope the token must carry (repeatable)")
	tokenCheckCmd.Flags().Bool("account-id", false, "print the account system ID instead of the virtual ID")

	tokenCmd.AddCommand(tokenIssueCmd, tokenCheckCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}
