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
	"crypto/tls"
	"errors"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"golang.org/x/oauth2"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrTLSRequired      = errors.New("server does not support starttls")
)

type Kind int

const (
	KindIMAP Kind = 0
	KindSMTP Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindIMAP:
		return "imap"
	case KindSMTP:
		return "smtp"
	default:
		return "unknown"
	}
}

// TokenProvider yields a valid bearer token for one account. Satisfied
// by *token.Manager.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type Config struct {
	AccountID string
	Username  string
	IMAPAddr  string
	SMTPAddr  string

	// TLS dials IMAP with implicit TLS instead of upgrading via
	// STARTTLS; SMTPTLS does the same for SMTP.
	TLS       bool
	SMTPTLS   bool
	TLSConfig *tls.Config

	// AllowInsecure permits authentication on a connection that was
	// neither implicitly TLS nor upgraded. Test servers only.
	AllowInsecure bool

	Tokens TokenProvider
	Debug  bool
}

// Session is a single authenticated protocol connection. It is owned
// by the pool while idle and by exactly one borrower while in use;
// it is never shared.
type Session interface {
	Kind() Kind
	AccountID() string

	// Healthy reports whether the session may be returned to the idle
	// set. Any protocol-level error flips this false permanently.
	Healthy() bool

	LastUsed() time.Time
	Touch()

	Close() error
}

type IMAP interface {
	Session

	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	UIDFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UIDSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	Noop() error
}

type SMTP interface {
	Session

	Send(from string, to []string, r io.Reader) error
	Noop() error
}

type Dialer interface {
	Dial(ctx context.Context, cfg *Config, kind Kind) (Session, error)
}

// NetDialer is the production Dialer: plaintext connect, STARTTLS
// upgrade, capability read, XOAUTH2 (or OAUTHBEARER) authentication.
type NetDialer struct {
	Timeout time.Duration
}
