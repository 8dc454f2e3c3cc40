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

package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
)

var (
	ErrNotUndoable = errors.New("message is no longer undoable")
	ErrClosed      = errors.New("outbox closed")
)

// Sessions is the slice of the connection pool the queue needs.
// Satisfied by *pool.Pool.
type Sessions interface {
	Acquire(ctx context.Context, accountID string, kind session.Kind) (session.Session, error)
	Release(s session.Session)
	Invalidate(s session.Session)
}

// Notification reports a terminal state change of an outbox message.
type Notification struct {
	ID    string
	State store.OutboxState
	Err   error
}

type Config struct {
	Store    store.Store
	Sessions Sessions

	// ScanInterval is how often the runner looks for due messages.
	// Defaults to 1 second.
	ScanInterval time.Duration

	// MaxSendRetries bounds transmission attempts after the first.
	// Defaults to 5.
	MaxSendRetries int

	// RetryBaseDelay is the first retry delay, doubled per retry.
	// Defaults to 30 seconds.
	RetryBaseDelay time.Duration

	// MaxQueueAge is how long a message may wait offline before it is
	// failed outright. Defaults to 72 hours.
	MaxQueueAge time.Duration

	// Notifications, if set, receives terminal transitions. Sends
	// never block; an unread notification is dropped.
	Notifications chan<- Notification
}

type Queue struct {
	cfg Config

	// claims gates pending_send completion: the undo path and the
	// runner race for it, exactly one side proceeds.
	mtx    sync.Mutex
	claims map[string]*pool.Claim

	kick     chan struct{}
	wantQuit chan struct{}
	hasQuit  chan struct{}

	shutdown int32
	now      func() time.Time
}
