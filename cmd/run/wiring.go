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

package run

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/vs49688/mailvault/cmd/config"
	"github.com/vs49688/mailvault/creds"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
	"github.com/vs49688/mailvault/token"
)

// tokenRegistry hands out one token.Manager per account, created on
// first use. It satisfies the engine's per-account token source; the
// per-session provider view comes from forAccount.
type tokenRegistry struct {
	mtx      sync.Mutex
	managers map[string]*token.Manager

	oauth    oauth2.Config
	creds    creds.Store
	accounts token.Accounts
	reauth   chan<- token.ReauthRequired
}

func newTokenRegistry(oauth oauth2.Config, cs creds.Store, accounts token.Accounts, reauth chan<- token.ReauthRequired) *tokenRegistry {
	return &tokenRegistry{
		managers: make(map[string]*token.Manager),
		oauth:    oauth,
		creds:    cs,
		accounts: accounts,
		reauth:   reauth,
	}
}

func (r *tokenRegistry) manager(accountID string) *token.Manager {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	m, ok := r.managers[accountID]
	if !ok {
		m = token.NewManager(token.Config{
			AccountID: accountID,
			OAuth:     r.oauth,
			Creds:     r.creds,
			Accounts:  r.accounts,
			Reauth:    r.reauth,
		})
		r.managers[accountID] = m
	}

	return m
}

func (r *tokenRegistry) Token(ctx context.Context, accountID string) (*oauth2.Token, error) {
	return r.manager(accountID).Token(ctx)
}

func (r *tokenRegistry) forAccount(accountID string) session.TokenProvider {
	return r.manager(accountID)
}

// accountConfigs resolves an account row into a dialable session
// configuration. The host URLs are parsed at dial time so an edited
// account takes effect on the next connection.
type accountConfigs struct {
	store  store.Store
	tokens *tokenRegistry

	allowInsecure bool
	debug         bool
}

func (c *accountConfigs) SessionConfig(ctx context.Context, accountID string) (*session.Config, error) {
	acc, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	imapAddr, imapTLS, err := config.ExtractAddr(acc.IMAPHost)
	if err != nil {
		return nil, err
	}

	smtpAddr, smtpTLS, err := config.ExtractAddr(acc.SMTPHost)
	if err != nil {
		return nil, err
	}

	return &session.Config{
		AccountID:     acc.ID,
		Username:      acc.Email,
		IMAPAddr:      imapAddr,
		SMTPAddr:      smtpAddr,
		TLS:           imapTLS,
		SMTPTLS:       smtpTLS,
		AllowInsecure: c.allowInsecure,
		Tokens:        c.tokens.forAccount(acc.ID),
		Debug:         c.debug,
	}, nil
}
