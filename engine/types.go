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

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
)

type ErrorKind int

const (
	KindAccountNotFound ErrorKind = iota
	KindFolderNotFound
	KindTokenRefreshFailed
	KindConnectionFailed
	KindSyncFailed
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccountNotFound:
		return "account_not_found"
	case KindFolderNotFound:
		return "folder_not_found"
	case KindTokenRefreshFailed:
		return "token_refresh_failed"
	case KindConnectionFailed:
		return "connection_failed"
	case KindSyncFailed:
		return "sync_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind      ErrorKind
	AccountID string
	Folder    string
	Err       error
}

func (e *Error) Error() string {
	if e.Folder != "" {
		return fmt.Sprintf("sync %v folder %v: %v: %v", e.AccountID, e.Folder, e.Kind, e.Err)
	}

	return fmt.Sprintf("sync %v: %v: %v", e.AccountID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, if err came from the engine.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

// Sessions is the slice of the connection pool the engine needs.
// Satisfied by *pool.Pool.
type Sessions interface {
	Acquire(ctx context.Context, accountID string, kind session.Kind) (session.Session, error)
	Release(s session.Session)
	Invalidate(s session.Session)
}

// TokenSource resolves a valid bearer token per account, refreshing if
// needed.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (*oauth2.Token, error)
}

// Publisher receives the IDs of newly stored messages for downstream
// enrichment. Implementations must not block the sync.
type Publisher interface {
	Publish(accountID string, messageIDs []string)
}

type Config struct {
	Store     store.Store
	Sessions  Sessions
	Tokens    TokenSource
	Publisher Publisher

	// MaxAttempts bounds connection retries per sync. Defaults to 3.
	MaxAttempts int

	// BaseDelay is the first retry delay, doubled per attempt.
	// Defaults to 1 second.
	BaseDelay time.Duration

	// MaxDuration aborts a sync that runs too long; progress already
	// committed is kept. Defaults to 10 minutes.
	MaxDuration time.Duration
}

// Result summarises one SyncAccount run.
type Result struct {
	AccountID string

	// Skipped is set when the account was inactive at the start.
	Skipped bool

	// Paused is set when the account went inactive mid-run; folders
	// already applied are kept.
	Paused bool

	Folders  int
	Inserted int
	Updated  int
	Deleted  int

	// FolderErrors holds per-folder failures that did not abort the
	// run.
	FolderErrors []error

	Duration time.Duration
}

type Engine struct {
	cfg Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}
