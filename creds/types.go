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

package creds

import (
	"fmt"
	"time"

	"github.com/99designs/keyring"
)

type Kind int

const (
	KindOAuth       Kind = 0
	KindAppPassword Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindOAuth:
		return "oauth"
	case KindAppPassword:
		return "app_password"
	default:
		return "unknown"
	}
}

// Credential is the stored secret for one account. Exactly one of the
// OAuth fields or Password is populated, per Kind.
type Credential struct {
	AccountID    string
	Kind         Kind
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
	Password     string
}

type Op int

const (
	OpRetrieve Op = 0
	OpStore    Op = 1
	OpDelete   Op = 2
)

func (o Op) String() string {
	switch o {
	case OpRetrieve:
		return "retrieve"
	case OpStore:
		return "store"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// StoreError is any backend failure other than "key not found", which
// is never an error.
type StoreError struct {
	Op  Op
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credential store: unable to %v: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is the credential store contract. Get returns (nil, nil) for a
// missing key. Put is atomic from the caller's point of view; if it
// fails, the previous value is gone and the caller must re-store.
type Store interface {
	Put(accountID string, cred *Credential) error
	Get(accountID string) (*Credential, error)
	Delete(accountID string) error
	Close()
}

type Config struct {
	ServiceName  string
	FileDir      string
	FilePassword string

	// ForceFile skips the native backend probe entirely. Used on
	// headless hosts and in tests.
	ForceFile bool
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "mailvault",
		FileDir:      "~/.config/mailvault/credentials",
		FilePassword: "mailvault-file-key",
	}
}

type putRequest struct {
	r         chan error
	accountID string
	cred      *Credential
}

type getResponse struct {
	cred *Credential
	err  error
}

type getRequest struct {
	r         chan getResponse
	accountID string
}

type deleteRequest struct {
	r         chan error
	accountID string
}

// KeyringStore serves all keyring traffic from a single goroutine so
// that a backend call which blocks on a user prompt never runs on a
// caller's control flow.
type KeyringStore struct {
	ring     keyring.Keyring
	backend  string
	incoming chan interface{}
	wantQuit chan struct{}
	hasQuit  chan struct{}
	shutdown int32
}
