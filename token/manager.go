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

package token

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/vs49688/mailvault/creds"
)

func NewManager(cfg Config) *Manager {
	if cfg.ExpiryBuffer == 0 {
		cfg.ExpiryBuffer = 300 * time.Second
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}

	return &Manager{
		cfg:   cfg,
		state: int32(StateValid),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

func (m *Manager) setState(s State) {
	old := State(atomic.SwapInt32(&m.state, int32(s)))
	if old != s {
		m.log().WithFields(log.Fields{"old": old, "new": s}).Trace("token_state_change")
	}
}

func (m *Manager) log() *log.Entry {
	return log.WithField("account", m.cfg.AccountID)
}

func tokenFromCredential(cred *creds.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		TokenType:    "Bearer",
	}
}

// Token returns a bearer token valid for at least the expiry buffer,
// refreshing it first if necessary. Concurrent callers share a single
// outstanding refresh.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	if m.State() == StateExhausted {
		return nil, ErrReauthRequired
	}

	cred, err := m.loadCredential()
	if err != nil {
		return nil, err
	}

	if m.now().Before(cred.Expiry.Add(-m.cfg.ExpiryBuffer)) {
		return tokenFromCredential(cred), nil
	}

	v, err, shared := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		m.log().Trace("token_refresh_shared")
	}

	return v.(*oauth2.Token), nil
}

func (m *Manager) loadCredential() (*creds.Credential, error) {
	cred, err := m.cfg.Creds.Get(m.cfg.AccountID)
	if err != nil {
		return nil, err
	}

	if cred == nil {
		return nil, ErrNoCredential
	}

	if cred.Kind != creds.KindOAuth {
		return nil, ErrNotOAuth
	}

	return cred, nil
}

// refresh performs the refresh-grant exchange with retry and backoff.
// It runs under the singleflight group, so at most one exchange is in
// flight per account.
func (m *Manager) refresh(ctx context.Context) (*oauth2.Token, error) {
	m.setState(StateRefreshing)

	// A caller that queued behind an earlier refresh may find the
	// credential already fresh.
	cred, err := m.loadCredential()
	if err != nil {
		m.setState(StateValid)
		return nil, err
	}

	if m.now().Before(cred.Expiry.Add(-m.cfg.ExpiryBuffer)) {
		m.setState(StateValid)
		return tokenFromCredential(cred), nil
	}

	var lastErr error
	delay := m.cfg.BaseDelay
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		tok, err := m.exchange(ctx, cred)
		if err == nil {
			if err := m.storeToken(cred, tok); err != nil {
				// The old value is already gone; surface the store
				// failure so the caller knows to re-auth or retry.
				m.setState(StateValid)
				return nil, err
			}

			m.setState(StateValid)
			m.log().WithField("expiry", tok.Expiry).Info("token_refreshed")
			return tok, nil
		}

		lastErr = err
		m.log().WithError(err).WithFields(log.Fields{
			"attempt":   attempt,
			"new_delay": delay,
		}).Warn("token_refresh_failed")

		if attempt == m.cfg.MaxAttempts {
			break
		}

		if err := m.sleep(ctx, delay); err != nil {
			m.setState(StateValid)
			return nil, err
		}
		delay *= 2
	}

	return nil, m.exhaust(lastErr)
}

func (m *Manager) exchange(ctx context.Context, cred *creds.Credential) (*oauth2.Token, error) {
	src := m.cfg.OAuth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, err
	}

	if tok.RefreshToken == "" {
		// Providers commonly omit the refresh token on renewal.
		tok.RefreshToken = cred.RefreshToken
	}

	return tok, nil
}

func (m *Manager) storeToken(old *creds.Credential, tok *oauth2.Token) error {
	return m.cfg.Creds.Put(m.cfg.AccountID, &creds.Credential{
		AccountID:    m.cfg.AccountID,
		Kind:         creds.KindOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        old.Scope,
	})
}

// exhaust is the terminal path: the account is deactivated, which
// pauses sync/send without discarding anything, and the application is
// told to re-authenticate.
func (m *Manager) exhaust(cause error) error {
	m.setState(StateExhausted)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.cfg.Accounts.SetAccountActive(ctx, m.cfg.AccountID, false); err != nil {
		m.log().WithError(err).Error("token_deactivate_failed")
	}

	if m.cfg.Reauth != nil {
		select {
		case m.cfg.Reauth <- ReauthRequired{AccountID: m.cfg.AccountID, Err: cause}:
		default:
			m.log().Warn("token_reauth_signal_dropped")
		}
	}

	m.log().WithError(cause).Error("token_refresh_exhausted")
	return fmt.Errorf("%w: %v", ErrReauthRequired, cause)
}

// Reauthorize installs a fresh credential obtained from a new user
// authorization and restarts the state machine at valid.
func (m *Manager) Reauthorize(ctx context.Context, cred *creds.Credential) error {
	if err := m.cfg.Creds.Put(m.cfg.AccountID, cred); err != nil {
		return err
	}

	if err := m.cfg.Accounts.SetAccountActive(ctx, m.cfg.AccountID, true); err != nil {
		return err
	}

	m.setState(StateValid)
	m.log().Info("token_reauthorized")
	return nil
}
