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
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
)

type sentMail struct {
	from string
	to   []string
	data string
}

type fakeSMTP struct {
	accountID string

	mu    sync.Mutex
	sends []sentMail
}

func (s *fakeSMTP) Kind() session.Kind  { return session.KindSMTP }
func (s *fakeSMTP) AccountID() string   { return s.accountID }
func (s *fakeSMTP) Healthy() bool       { return true }
func (s *fakeSMTP) LastUsed() time.Time { return time.Now() }
func (s *fakeSMTP) Touch()              {}
func (s *fakeSMTP) Close() error        { return nil }
func (s *fakeSMTP) Noop() error         { return nil }

func (s *fakeSMTP) Send(from string, to []string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sentMail{from: from, to: to, data: string(data)})
	return nil
}

func (s *fakeSMTP) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

type fakeSessions struct {
	smtp *fakeSMTP

	mu  sync.Mutex
	err error
}

func (f *fakeSessions) Acquire(_ context.Context, accountID string, _ session.Kind) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.smtp.accountID = accountID
	return f.smtp, nil
}

func (f *fakeSessions) Release(_ session.Session)    {}
func (f *fakeSessions) Invalidate(_ session.Session) {}

func (f *fakeSessions) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type queueEnv struct {
	queue         *Queue
	store         *store.SQLiteStore
	sessions      *fakeSessions
	notifications chan Notification
}

func buildTestQueue(t *testing.T, mutate func(*Config)) *queueEnv {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "outbox.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = st.Close() })

	err = st.CreateAccount(context.Background(), &store.Account{
		ID:     "acct-1",
		Email:  "username@example.com",
		Active: true,
	})
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	sessions := &fakeSessions{smtp: &fakeSMTP{}}
	notifications := make(chan Notification, 16)

	cfg := Config{
		Store:         st,
		Sessions:      sessions,
		ScanInterval:  10 * time.Millisecond,
		Notifications: notifications,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	q := NewQueue(cfg)
	t.Cleanup(func() { _ = q.Close() })

	return &queueEnv{queue: q, store: st, sessions: sessions, notifications: notifications}
}

func testMessage() *store.OutboxMessage {
	return &store.OutboxMessage{
		AccountID: "acct-1",
		FromAddr:  "username@example.com",
		ToAddrs:   "one@example.com, two@example.com",
		Subject:   "hello",
		Body:      "a test message",
	}
}

func waitNotification(t *testing.T, ch <-chan Notification, state store.OutboxState) Notification {
	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-ch:
			if n.State == state {
				return n
			}
		case <-deadline:
			t.Fatalf("no %v notification", state)
		}
	}
}

func TestSubmitImmediateSend(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	n := waitNotification(t, env.notifications, store.OutboxSent)
	assert.Equal(t, msg.ID, n.ID)

	got, err := env.store.GetOutbox(ctx, msg.ID)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxSent, got.State)

	env.sessions.smtp.mu.Lock()
	defer env.sessions.smtp.mu.Unlock()
	if len(env.sessions.smtp.sends) != 1 {
		t.FailNow()
	}

	sent := env.sessions.smtp.sends[0]
	assert.Equal(t, "username@example.com", sent.from)
	assert.Equal(t, []string{"one@example.com", "two@example.com"}, sent.to)
	assert.Contains(t, sent.data, "Subject: hello")
	assert.Contains(t, sent.data, "a test message")
}

func TestUndoDuringWindow(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, time.Hour))

	assert.NoError(t, env.queue.Undo(ctx, msg.ID))

	got, err := env.store.GetOutbox(ctx, msg.ID)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxComposing, got.State)

	// Give the runner a few scans; the message must never go out.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.sessions.smtp.sendCount())
}

func TestUndoAfterSend(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	waitNotification(t, env.notifications, store.OutboxSent)

	assert.ErrorIs(t, env.queue.Undo(ctx, msg.ID), ErrNotUndoable)
}

func TestOfflineRetryThenFailed(t *testing.T) {
	env := buildTestQueue(t, func(cfg *Config) {
		cfg.MaxSendRetries = 2
		cfg.RetryBaseDelay = time.Millisecond
	})
	ctx := context.Background()

	env.sessions.setError(fmt.Errorf("%w: network is down", session.ErrConnectionFailed))

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	n := waitNotification(t, env.notifications, store.OutboxFailed)
	assert.Equal(t, msg.ID, n.ID)
	assert.Error(t, n.Err)

	got, err := env.store.GetOutbox(ctx, msg.ID)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxFailed, got.State)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, 0, env.sessions.smtp.sendCount())
}

func TestOfflineRecoversWhenConnectivityReturns(t *testing.T) {
	env := buildTestQueue(t, func(cfg *Config) {
		cfg.RetryBaseDelay = time.Millisecond
	})
	ctx := context.Background()

	env.sessions.setError(fmt.Errorf("%w: network is down", session.ErrConnectionFailed))

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	// Let it park offline at least once, then restore the network.
	time.Sleep(50 * time.Millisecond)
	env.sessions.setError(nil)

	waitNotification(t, env.notifications, store.OutboxSent)
	assert.Equal(t, 1, env.sessions.smtp.sendCount())
}

func TestRecoverDemotesStranded(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "outbox.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	err = st.CreateAccount(ctx, &store.Account{ID: "acct-1", Email: "username@example.com", Active: true})
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	// A message from a previous process life, killed mid-window.
	stranded := testMessage()
	stranded.ID = "stranded-1"
	stranded.State = store.OutboxPendingSend
	stranded.SendAfter = time.Now().Add(-time.Minute)
	assert.NoError(t, st.CreateOutbox(ctx, stranded))

	notifications := make(chan Notification, 16)
	q := NewQueue(Config{
		Store:         st,
		Sessions:      &fakeSessions{smtp: &fakeSMTP{}},
		ScanInterval:  time.Hour,
		Notifications: notifications,
	})
	t.Cleanup(func() { _ = q.Close() })

	ids, err := q.Recover(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"stranded-1"}, ids)

	got, err := st.GetOutbox(ctx, "stranded-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxComposing, got.State)

	waitNotification(t, notifications, store.OutboxComposing)
}

func TestSubjectNewlinesCannotAddHeaders(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	msg := testMessage()
	msg.Subject = "hello\r\nBcc: attacker@example.com"
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	waitNotification(t, env.notifications, store.OutboxSent)

	env.sessions.smtp.mu.Lock()
	defer env.sessions.smtp.mu.Unlock()
	if len(env.sessions.smtp.sends) != 1 {
		t.FailNow()
	}

	// The newline must be encoded into the subject value, never emitted
	// as a header terminator followed by a Bcc line of its own.
	data := env.sessions.smtp.sends[0].data
	assert.NotContains(t, data, "\nBcc:")
	assert.Contains(t, data, "a test message")
}

func TestMalformedRecipientsFailWithoutSending(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	msg := testMessage()
	msg.ToAddrs = "one@example.com>\r\nRCPT TO:<evil@example.com"
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	n := waitNotification(t, env.notifications, store.OutboxFailed)
	assert.Equal(t, msg.ID, n.ID)
	assert.Error(t, n.Err)
	assert.Equal(t, 0, env.sessions.smtp.sendCount())
}

// glitchingStore fails the first TransitionOutbox calls with a
// non-conflict error, then behaves normally.
type glitchingStore struct {
	store.Store
	failures int32
}

func (g *glitchingStore) TransitionOutbox(ctx context.Context, id string, from, to store.OutboxState) error {
	if atomic.AddInt32(&g.failures, -1) >= 0 {
		return fmt.Errorf("database is locked")
	}

	return g.Store.TransitionOutbox(ctx, id, from, to)
}

func TestTransientTransitionFailureRetries(t *testing.T) {
	var gs *glitchingStore
	env := buildTestQueue(t, func(cfg *Config) {
		gs = &glitchingStore{Store: cfg.Store, failures: 2}
		cfg.Store = gs
	})
	ctx := context.Background()

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	// The first scans lose their transition; the claim must be released
	// each time so a later scan can pick the message up again.
	waitNotification(t, env.notifications, store.OutboxSent)
	assert.Equal(t, 1, env.sessions.smtp.sendCount())

	got, err := env.store.GetOutbox(ctx, msg.ID)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxSent, got.State)
}

func TestInactiveAccountIsNotSent(t *testing.T) {
	env := buildTestQueue(t, nil)
	ctx := context.Background()

	assert.NoError(t, env.store.SetAccountActive(ctx, "acct-1", false))

	msg := testMessage()
	assert.NoError(t, env.queue.Submit(ctx, msg, 0))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, env.sessions.smtp.sendCount())

	got, err := env.store.GetOutbox(ctx, msg.ID)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, store.OutboxPendingSend, got.State)

	assert.NoError(t, env.store.SetAccountActive(ctx, "acct-1", true))
	waitNotification(t, env.notifications, store.OutboxSent)
}