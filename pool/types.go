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

package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vs49688/mailvault/session"
)

var (
	ErrClosed      = errors.New("pool closed")
	ErrDialTimeout = errors.New("dial timed out")
)

// ConfigSource resolves the connection parameters for an account at
// dial time, so credential or endpoint changes take effect on the
// next dial without restarting the pool.
type ConfigSource interface {
	SessionConfig(ctx context.Context, accountID string) (*session.Config, error)
}

type Config struct {
	Dialer  session.Dialer
	Configs ConfigSource

	// MaxPerKey bounds live sessions (in use + idle) per
	// (account, kind). Defaults to 3.
	MaxPerKey int

	// IdleTimeout is how long a session may sit idle before the
	// sweeper closes it. Defaults to 5 minutes.
	IdleTimeout time.Duration

	// DialTimeout bounds a single bring-up attempt. Defaults to 30
	// seconds.
	DialTimeout time.Duration

	SweepInterval time.Duration
}

type key struct {
	accountID string
	kind      session.Kind
}

// waiter is an acquirer parked at the per-key cap. It is resumed with
// either a released session or nil, meaning a slot freed up and the
// dial should be retried. claim settles the handoff-vs-timeout race.
type waiter struct {
	claim *Claim
	ch    chan session.Session
}

type bucket struct {
	idle    []session.Session
	live    int
	waiters []*waiter
}

type Pool struct {
	cfg Config

	mtx     sync.Mutex
	buckets map[key]*bucket
	closed  bool

	sweepQuit chan struct{}
	sweepDone chan struct{}
}
