package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/tender-finder/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin bearer token signed with the admin secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, err := auth.IssueToken(appConfig.AdminSecret, tokenSubject, tokenTTL)
		if err != nil {
			return fmt.Errorf("%w (set TENDERS_ADMIN_SECRET)", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
