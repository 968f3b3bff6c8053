/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/solodesign/apiserver/config"
	"github.com/solodesign/apiserver/internal/auth"
	"github.com/spf13/cobra"
)

var adminTokenTTL time.Duration

// adminTokenCmd mints an admin_token value for scripts and local testing.
var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Print a signed admin token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		ttl := adminTokenTTL
		if ttl <= 0 {
			ttl = cfg.Admin.TokenTTL
		}
		token, expires, err := auth.IssueLegacyToken([]byte(cfg.Admin.TokenSecret), ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminTokenCmd)
	adminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
}
