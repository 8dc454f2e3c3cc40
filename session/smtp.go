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

package session

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"
	log "github.com/sirupsen/logrus"
)

type smtpSession struct {
	c         *smtp.Client
	accountID string
	healthy   int32
	lastUsed  int64
}

func (d *NetDialer) dialSMTP(ctx context.Context, cfg *Config) (SMTP, error) {
	var c *smtp.Client
	var err error
	if cfg.SMTPTLS {
		c, err = smtp.DialTLS(cfg.SMTPAddr, cfg.TLSConfig)
	} else {
		c, err = smtp.Dial(cfg.SMTPAddr)
	}

	if err != nil {
		return nil, connFailed("smtp_dial", cfg.SMTPAddr, err)
	}

	wantCleanup := true
	defer func() {
		if wantCleanup {
			_ = c.Close()
		}
	}()

	if !cfg.SMTPTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			// go-smtp >= 0.21 has no exported way to upgrade an
			// established client, so reconnect via DialStartTLS.
			_ = c.Close()
			if c, err = smtp.DialStartTLS(cfg.SMTPAddr, cfg.TLSConfig); err != nil {
				wantCleanup = false
				return nil, connFailed("smtp_starttls", cfg.SMTPAddr, err)
			}
		} else if !cfg.AllowInsecure {
			return nil, connFailed("smtp_starttls", cfg.SMTPAddr, ErrTLSRequired)
		}
	}

	tok, err := cfg.Tokens.Token(ctx)
	if err != nil {
		return nil, connFailed("smtp_token", cfg.SMTPAddr, err)
	}

	mechanisms := map[string]bool{}
	if ok, param := c.Extension("AUTH"); ok {
		for _, m := range strings.Fields(param) {
			mechanisms[m] = true
		}
	}

	if err := c.Auth(newSASLClient(cfg.Username, tok.AccessToken, mechanisms)); err != nil {
		return nil, connFailed("smtp_auth", cfg.SMTPAddr, err)
	}

	wantCleanup = false

	s := &smtpSession{
		c:         c,
		accountID: cfg.AccountID,
		healthy:   1,
	}
	s.Touch()

	log.WithFields(log.Fields{
		"account": cfg.AccountID,
		"addr":    cfg.SMTPAddr,
	}).Trace("session_smtp_established")

	return s, nil
}

func (s *smtpSession) Kind() Kind        { return KindSMTP }
func (s *smtpSession) AccountID() string { return s.accountID }

func (s *smtpSession) Healthy() bool {
	return atomic.LoadInt32(&s.healthy) != 0
}

func (s *smtpSession) LastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastUsed))
}

func (s *smtpSession) Touch() {
	atomic.StoreInt64(&s.lastUsed, time.Now().UnixNano())
}

func (s *smtpSession) Close() error {
	return s.c.Quit()
}

func (s *smtpSession) fail(err error) error {
	if err != nil {
		atomic.StoreInt32(&s.healthy, 0)
	}

	s.Touch()
	return err
}

// Send runs one MAIL/RCPT/DATA transaction. Any failure poisons the
// session; SMTP has no reliable way to resynchronise mid-transaction.
func (s *smtpSession) Send(from string, to []string, r io.Reader) error {
	if err := s.c.Mail(from, nil); err != nil {
		return s.fail(err)
	}

	for _, rcpt := range to {
		if err := s.c.Rcpt(rcpt, nil); err != nil {
			return s.fail(err)
		}
	}

	w, err := s.c.Data()
	if err != nil {
		return s.fail(err)
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return s.fail(err)
	}

	return s.fail(w.Close())
}

func (s *smtpSession) Noop() error {
	return s.fail(s.c.Noop())
}
