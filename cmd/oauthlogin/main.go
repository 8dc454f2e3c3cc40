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

package oauthlogin

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"github.com/vs49688/mailvault/cmd/config"
	"github.com/vs49688/mailvault/creds"
	"github.com/vs49688/mailvault/store"
	"github.com/vs49688/mailvault/token"
)

type loginConfig struct {
	config.CliConfig
	AccountID string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &loginConfig{}

	flags := cfg.Parameters()
	flags = append(flags, &cli.StringFlag{
		Name:        "account",
		Usage:       "account id to authorize",
		EnvVars:     []string{"MAILVAULT_ACCOUNT"},
		Destination: &cfg.AccountID,
		Required:    true,
	})

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "oauthlogin",
		Usage:  "Authorize an account via OAuth2",
		Flags:  flags,
		Action: func(context *cli.Context) error { return oauthlogin(context, cfg) },
	})
	return app
}

// oauthlogin runs the authorization-code flow against a loopback
// redirect, then installs the resulting credential for the account.
func oauthlogin(ctx *cli.Context, cfg *loginConfig) error {
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	oauthCfg, err := cfg.OAuth.Build()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if _, err := st.GetAccount(ctx.Context, cfg.AccountID); err != nil {
		return err
	}

	cs, err := creds.Open(creds.Config{
		ServiceName:  cfg.Keyring.ServiceName,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
		ForceFile:    cfg.Keyring.ForceFile,
	})
	if err != nil {
		return err
	}
	defer cs.Close()

	code, err := authorize(ctx, &oauthCfg)
	if err != nil {
		return err
	}

	tok, err := oauthCfg.Exchange(ctx.Context, code, oauth2.AccessTypeOffline)
	if err != nil {
		return err
	}

	if tok.RefreshToken == "" {
		return fmt.Errorf("provider did not return a refresh token")
	}

	mgr := token.NewManager(token.Config{
		AccountID: cfg.AccountID,
		OAuth:     oauthCfg,
		Creds:     cs,
		Accounts:  st,
	})

	err = mgr.Reauthorize(ctx.Context, &creds.Credential{
		AccountID:    cfg.AccountID,
		Kind:         creds.KindOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        strings.Join(oauthCfg.Scopes, " "),
	})
	if err != nil {
		return err
	}

	log.WithField("account", cfg.AccountID).Info("account_authorized")
	return nil
}

// authorize serves a one-shot loopback redirect and returns the
// authorization code. The listener binds an ephemeral port so no fixed
// port needs registering with the provider beyond the loopback rule.
func authorize(ctx *cli.Context, oauthCfg *oauth2.Config) (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()

	oauthCfg.RedirectURL = fmt.Sprintf("http://%v/callback", l.Addr())
	state := uuid.NewString()

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var cb callback
		switch {
		case q.Get("state") != state:
			cb.err = fmt.Errorf("oauth state mismatch")
		case q.Get("error") != "":
			cb.err = fmt.Errorf("authorization refused: %v", q.Get("error"))
		default:
			cb.code = q.Get("code")
		}

		if cb.err != nil {
			http.Error(w, cb.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "Authorized. You may close this window.")
		}

		select {
		case results <- cb:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(l) }()
	defer func() { _ = srv.Close() }()

	url := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	log.Infof("Open the following URL in your browser:\n\n  %v\n", url)

	select {
	case cb := <-results:
		if cb.err != nil {
			return "", cb.err
		}
		return cb.code, nil
	case <-ctx.Context.Done():
		return "", ctx.Context.Err()
	}
}
