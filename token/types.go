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
	"errors"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/vs49688/mailvault/creds"
)

var (
	ErrNoCredential   = errors.New("no credential stored for account")
	ErrNotOAuth       = errors.New("stored credential is not an oauth token")
	ErrReauthRequired = errors.New("reauthentication required")
)

type State int32

const (
	StateValid      State = 0
	StateRefreshing State = 1
	StateExhausted  State = 2
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshing:
		return "refreshing"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Accounts is the slice of the persistence layer the manager needs to
// deactivate an account on refresh exhaustion.
type Accounts interface {
	SetAccountActive(ctx context.Context, id string, active bool) error
}

// ReauthRequired is the terminal signal raised when the refresh budget
// is spent. The surrounding application surfaces it to the user.
type ReauthRequired struct {
	AccountID string
	Err       error
}

type Config struct {
	AccountID string
	OAuth     oauth2.Config
	Creds     creds.Store
	Accounts  Accounts
	Reauth    chan<- ReauthRequired

	// ExpiryBuffer is subtracted from the token expiry when deciding
	// whether a refresh is needed. Defaults to 5 minutes.
	ExpiryBuffer time.Duration
	// MaxAttempts is the total refresh attempt budget. Defaults to 3.
	MaxAttempts int
	// BaseDelay is the first backoff delay; each subsequent delay
	// doubles. Defaults to 1s.
	BaseDelay time.Duration
}

type Manager struct {
	cfg   Config
	group singleflight.Group
	state int32

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}
