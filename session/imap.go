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
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	log "github.com/sirupsen/logrus"
)

type imapSession struct {
	c         *client.Client
	accountID string
	healthy   int32
	lastUsed  int64
}

func (d *NetDialer) dialIMAP(ctx context.Context, cfg *Config) (IMAP, error) {
	dialer := &net.Dialer{Timeout: d.Timeout}

	var c *client.Client
	var err error
	if cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, cfg.IMAPAddr, cfg.TLSConfig)
	} else {
		c, err = client.DialWithDialer(dialer, cfg.IMAPAddr)
	}

	if err != nil {
		return nil, connFailed("imap_dial", cfg.IMAPAddr, err)
	}

	wantCleanup := true
	defer func() {
		if wantCleanup {
			_ = c.Logout()
		}
	}()

	if cfg.Debug {
		c.SetDebug(os.Stderr)
	}

	if !cfg.TLS {
		ok, err := c.SupportStartTLS()
		if err != nil {
			return nil, connFailed("imap_capability", cfg.IMAPAddr, err)
		}

		if ok {
			if err := c.StartTLS(cfg.TLSConfig); err != nil {
				return nil, connFailed("imap_starttls", cfg.IMAPAddr, err)
			}
		} else if !cfg.AllowInsecure {
			return nil, connFailed("imap_starttls", cfg.IMAPAddr, ErrTLSRequired)
		}
	}

	caps, err := c.Capability()
	if err != nil {
		return nil, connFailed("imap_capability", cfg.IMAPAddr, err)
	}

	tok, err := cfg.Tokens.Token(ctx)
	if err != nil {
		return nil, connFailed("imap_token", cfg.IMAPAddr, err)
	}

	mechanisms := map[string]bool{}
	for name, ok := range caps {
		if ok && len(name) > 5 && name[:5] == "AUTH=" {
			mechanisms[name[5:]] = true
		}
	}

	if err := c.Authenticate(newSASLClient(cfg.Username, tok.AccessToken, mechanisms)); err != nil {
		return nil, connFailed("imap_auth", cfg.IMAPAddr, err)
	}

	wantCleanup = false

	s := &imapSession{
		c:         c,
		accountID: cfg.AccountID,
		healthy:   1,
	}
	s.Touch()

	log.WithFields(log.Fields{
		"account": cfg.AccountID,
		"addr":    cfg.IMAPAddr,
	}).Trace("session_imap_established")

	return s, nil
}

func (s *imapSession) Kind() Kind        { return KindIMAP }
func (s *imapSession) AccountID() string { return s.accountID }

func (s *imapSession) Healthy() bool {
	if atomic.LoadInt32(&s.healthy) == 0 {
		return false
	}

	select {
	case <-s.c.LoggedOut():
		// Closed by peer while idle; not an error, just unusable.
		return false
	default:
		return true
	}
}

func (s *imapSession) LastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastUsed))
}

func (s *imapSession) Touch() {
	atomic.StoreInt64(&s.lastUsed, time.Now().UnixNano())
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}

// fail marks the session unhealthy on any protocol error so the pool
// never hands it out again in an unknown state.
func (s *imapSession) fail(err error) error {
	if err != nil {
		atomic.StoreInt32(&s.healthy, 0)
	}

	s.Touch()
	return err
}

func (s *imapSession) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	status, err := s.c.Select(name, readOnly)
	return status, s.fail(err)
}

func (s *imapSession) List(ref, name string, ch chan *imap.MailboxInfo) error {
	return s.fail(s.c.List(ref, name, ch))
}

func (s *imapSession) UIDFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	return s.fail(s.c.UidFetch(seqset, items, ch))
}

func (s *imapSession) UIDSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	uids, err := s.c.UidSearch(criteria)
	return uids, s.fail(err)
}

func (s *imapSession) Noop() error {
	return s.fail(s.c.Noop())
}
