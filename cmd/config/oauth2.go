/*
 * MailVault - Copyright (C) 2023 Zane van Iperen.
 *    Contact: zane@zanevaniperen.com
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package config

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

func (cfg *OAuth2Config) Parameters() []cli.Flag {
	def := DefaultConfig().OAuth

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "oauth-provider",
			Usage:       "oauth2 provider (google, microsoft, custom)",
			EnvVars:     []string{"MAILVAULT_OAUTH_PROVIDER"},
			Destination: &cfg.Provider,
			Value:       def.Provider,
		},
		&cli.StringFlag{
			Name:        "oauth-client-id",
			Usage:       "oauth2 client id",
			EnvVars:     []string{"MAILVAULT_OAUTH_CLIENT_ID"},
			Destination: &cfg.ClientID,
			Value:       def.ClientID,
		},
		&cli.StringFlag{
			Name:        "oauth-client-secret",
			Usage:       "oauth2 client secret",
			EnvVars:     []string{"MAILVAULT_OAUTH_CLIENT_SECRET"},
			Destination: &cfg.ClientSecret,
			Value:       def.ClientSecret,
		},
		&cli.StringFlag{
			Name:        "oauth-auth-url",
			Usage:       "oauth2 authorization endpoint, for custom providers",
			EnvVars:     []string{"MAILVAULT_OAUTH_AUTH_URL"},
			Destination: &cfg.AuthURL,
			Value:       def.AuthURL,
		},
		&cli.StringFlag{
			Name:        "oauth-token-url",
			Usage:       "oauth2 token endpoint, for custom providers",
			EnvVars:     []string{"MAILVAULT_OAUTH_TOKEN_URL"},
			Destination: &cfg.TokenURL,
			Value:       def.TokenURL,
		},
		&cli.StringFlag{
			Name:        "oauth-scope",
			Usage:       "space-separated oauth2 scopes, for custom providers",
			EnvVars:     []string{"MAILVAULT_OAUTH_SCOPE"},
			Destination: &cfg.Scope,
			Value:       def.Scope,
		},
	}
}

// Build resolves the provider preset into a usable oauth2.Config. The
// redirect URL is filled in later by whoever runs the authorization
// flow.
func (cfg *OAuth2Config) Build() (oauth2.Config, error) {
	if cfg.ClientID == "" {
		return oauth2.Config{}, fmt.Errorf("\"oauth-client-id\" is required")
	}

	oc := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}

	switch strings.ToLower(cfg.Provider) {
	case "google":
		oc.Endpoint = endpoints.Google
		oc.Scopes = []string{"https://mail.google.com/"}
	case "microsoft":
		oc.Endpoint = endpoints.Microsoft
		oc.Scopes = []string{
			"https://outlook.office.com/IMAP.AccessAsUser.All",
			"https://outlook.office.com/SMTP.Send",
			"offline_access",
		}
	case "custom":
		if cfg.AuthURL == "" || cfg.TokenURL == "" {
			return oauth2.Config{}, fmt.Errorf("\"oauth-auth-url\" and \"oauth-token-url\" are required for custom providers")
		}

		oc.Endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
		oc.Scopes = strings.Fields(cfg.Scope)
	default:
		return oauth2.Config{}, fmt.Errorf("unsupported oauth provider: %v", cfg.Provider)
	}

	return oc, nil
}
