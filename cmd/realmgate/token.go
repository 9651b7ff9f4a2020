package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/openchami/realmgate/pkg/token"
	"github.com/spf13/cobra"
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Check that the admin service account can obtain a token",
	Long: `Performs the admin password grant and reports when the token expires.
The token itself is never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kc := keycloak.NewClient(cfg.IdP.BaseURL, cfg.IdP.Realm, cfg.IdP.ClientID, cfg.IdP.ClientSecret.Value(),
			keycloak.WithHTTPClient(&http.Client{Timeout: cfg.IdP.HTTPTimeout}))
		cache, err := token.NewAdminTokenCache(kc, token.AdminTokenCacheConfig{
			Realm:        cfg.Admin.Realm,
			ClientID:     cfg.Admin.ClientID,
			Username:     cfg.Admin.Username,
			Password:     cfg.Admin.Password.Value(),
			SafetyMargin: cfg.Admin.SafetyMargin,
		})
		if err != nil {
			return err
		}

		tok, err := cache.GetAdminToken(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to obtain admin token: %w", err)
		}
		fmt.Printf("Admin token for %s@%s valid until %s (%s)\n",
			cfg.Admin.Username, cfg.Admin.Realm, tok.ExpiresAt.Format(time.RFC3339), time.Until(tok.ExpiresAt).Round(time.Second))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminTokenCmd)
}
