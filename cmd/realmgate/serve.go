// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openchami/realmgate/middleware"
	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/config"
	"github.com/openchami/realmgate/pkg/gateway"
	tokenjwt "github.com/openchami/realmgate/pkg/jwt"
	"github.com/openchami/realmgate/pkg/keycloak"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/openchami/realmgate/pkg/metrics"
	"github.com/openchami/realmgate/pkg/policy"
	"github.com/openchami/realmgate/pkg/token"
	"github.com/spf13/cobra"
)

var discover bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		return svc.Start(ctx, cfg.ListenAddr)
	},
}

func init() {
	// Serve command flags
	serveCmd.Flags().String("listen", "", "HTTP listen address")
	serveCmd.Flags().String("idp-url", "", "Identity provider base URL")
	serveCmd.Flags().String("realm", "", "Realm to protect")
	serveCmd.Flags().String("client-id", "", "Confidential client the gateway acts as")
	serveCmd.Flags().String("parse-mode", "", "Claim parse mode (lenient, strict)")
	serveCmd.Flags().Bool("exchange-rpt", false, "Exchange each bearer token for an RPT to resolve permissions")
	serveCmd.Flags().String("policy-file", "", "Path to a route requirement file")
	serveCmd.Flags().BoolVar(&discover, "discover", false, "Resolve issuer and JWKS location from the discovery document")
	bindFlags(serveCmd.Flags(), map[string]string{
		"listen_addr":         "listen",
		"idp.base_url":        "idp-url",
		"idp.realm":           "realm",
		"idp.client_id":       "client-id",
		"claims.parse_mode":   "parse-mode",
		"claims.exchange_rpt": "exchange-rpt",
		"policy.file":         "policy-file",
	})

	rootCmd.AddCommand(serveCmd)
}

// buildService wires every gateway component from cfg.
func buildService(ctx context.Context, cfg *config.Config) (*gateway.Service, error) {
	logger := logging.GetLogger("serve")
	m := metrics.New()

	kc := keycloak.NewClient(cfg.IdP.BaseURL, cfg.IdP.Realm, cfg.IdP.ClientID, cfg.IdP.ClientSecret.Value(),
		keycloak.WithHTTPClient(&http.Client{Timeout: cfg.IdP.HTTPTimeout}))

	issuer, jwksURL := kc.IssuerURL(), kc.JWKSURL()
	if discover {
		md, err := kc.GetProviderMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to discover provider metadata: %w", err)
		}
		issuer, jwksURL = md.Issuer, md.JWKSURI
	}

	tokens, err := token.NewAdminTokenCache(kc, token.AdminTokenCacheConfig{
		Realm:        cfg.Admin.Realm,
		ClientID:     cfg.Admin.ClientID,
		Username:     cfg.Admin.Username,
		Password:     cfg.Admin.Password.Value(),
		SafetyMargin: cfg.Admin.SafetyMargin,
	}, token.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	validator, err := tokenjwt.NewValidator(ctx, tokenjwt.ValidatorConfig{
		Issuer:     issuer,
		Audience:   cfg.IdP.Audience,
		JWKSURL:    jwksURL,
		HTTPClient: kc.HTTPClient(),
	})
	if err != nil {
		return nil, err
	}

	exchanger := token.NewRPTExchanger(kc, m)
	mode, err := claims.ParseModeFromString(cfg.Claims.ParseMode)
	if err != nil {
		return nil, err
	}
	augOpts := claims.Options{Mode: mode, Metrics: m}
	if cfg.Claims.ExchangeRPT {
		augOpts.Exchanger = exchanger
		augOpts.Validator = validator
	}
	aug, err := claims.NewAugmentor(augOpts)
	if err != nil {
		return nil, err
	}

	registry, err := policy.LoadRegistryFile(cfg.Policy.File, gateway.DefaultRegistry())
	if err != nil {
		return nil, err
	}

	svc, err := gateway.NewService(gateway.Config{
		IdP:              kc,
		Exchanger:        exchanger,
		Admin:            keycloak.NewAdminClient(kc, cfg.IdP.Realm, tokens, cfg.Admin.ClientCacheTTL),
		Authenticator:    middleware.NewAuthenticator(validator, aug, middleware.Options{}),
		Engine:           policy.NewEngine(registry, m),
		Metrics:          m,
		ResourceClientID: cfg.IdP.ClientID,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("idp", kc.String()).
		Str("issuer", issuer).
		Str("parse_mode", string(mode)).
		Bool("exchange_rpt", cfg.Claims.ExchangeRPT).
		Int("guarded_operations", registry.Len()).
		Msg("gateway configured")
	return svc, nil
}
