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
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"

	"github.com/vs49688/mailvault/internal"
	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/session/mocks"
	"github.com/vs49688/mailvault/store"
)

const testToken = "test-access-token"

type staticTokens struct {
	err error
}

func (s *staticTokens) Token(_ context.Context, _ string) (*oauth2.Token, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &oauth2.Token{AccessToken: testToken, TokenType: "Bearer"}, nil
}

// sessionTokens adapts the per-account source to the per-session one.
type sessionTokens struct {
	tokens    TokenSource
	accountID string
}

func (s *sessionTokens) Token(ctx context.Context) (*oauth2.Token, error) {
	return s.tokens.Token(ctx, s.accountID)
}

type imapConfigs struct {
	addr   string
	tokens TokenSource
}

func (c *imapConfigs) SessionConfig(_ context.Context, accountID string) (*session.Config, error) {
	return &session.Config{
		AccountID:     accountID,
		Username:      "username",
		IMAPAddr:      c.addr,
		AllowInsecure: true,
		Tokens:        &sessionTokens{tokens: c.tokens, accountID: accountID},
	}, nil
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) Publish(_ string, messageIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, messageIDs...)
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type testEnv struct {
	engine    *Engine
	server    *server.Server
	store     *store.SQLiteStore
	mailbox   *memory.Mailbox
	publisher *recordingPublisher
}

func buildTestEngine(t *testing.T) *testEnv {
	s, addr, mailbox := internal.BuildTestIMAPServer(t)
	internal.EnableBearerAuth(s, "username", testToken)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mailvault.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = st.Close() })

	err = st.CreateAccount(context.Background(), &store.Account{
		ID:             "acct-1",
		Email:          "username@example.com",
		IMAPHost:       addr,
		SyncWindowDays: 30,
		Active:         true,
	})
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	tokens := &staticTokens{}

	p := pool.New(pool.Config{
		Dialer:  &session.NetDialer{Timeout: 10 * time.Second},
		Configs: &imapConfigs{addr: addr, tokens: tokens},
	})
	t.Cleanup(func() { _ = p.Close() })

	publisher := &recordingPublisher{}

	e := New(Config{
		Store:     st,
		Sessions:  p,
		Tokens:    tokens,
		Publisher: publisher,
		BaseDelay: 10 * time.Millisecond,
	})

	return &testEnv{engine: e, server: s, store: st, mailbox: mailbox, publisher: publisher}
}

func appendTestMessage(mbox *memory.Mailbox, uid uint32, subject, from string, flags ...string) {
	body := fmt.Sprintf(
		"From: %v\r\nTo: username@example.com\r\nSubject: %v\r\nDate: %v\r\nMessage-Id: <%v@example.com>\r\n\r\nhello from %v\r\n",
		from, subject, time.Now().Format(time.RFC1123Z), uid, from,
	)

	mbox.Messages = append(mbox.Messages, &memory.Message{
		Uid:   uid,
		Date:  time.Now(),
		Flags: flags,
		Size:  uint32(len(body)),
		Body:  []byte(body),
	})
}

func TestSyncAccountInitial(t *testing.T) {
	env := buildTestEngine(t)
	ctx := context.Background()

	appendTestMessage(env.mailbox, 1, "hello", "alice@example.com")
	appendTestMessage(env.mailbox, 2, "Re: hello", "bob@example.com")

	res, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	assert.Equal(t, 1, res.Folders)
	assert.Equal(t, 2, res.Inserted)
	assert.False(t, res.Skipped)
	assert.Empty(t, res.FolderErrors)

	f, err := env.store.GetFolder(ctx, "acct-1", "INBOX")
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), f.LastSeenUID)

	ids := env.publisher.published()
	assert.Len(t, ids, 2)

	msg, err := env.store.GetMessage(ctx, ids[0])
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, "hello", msg.Subject)
	assert.Equal(t, "alice@example.com", msg.FromAddr)
	assert.Contains(t, msg.Body, "hello from alice@example.com")
	assert.NotZero(t, msg.ThreadID)

	// Reply threads with the original.
	reply, err := env.store.GetMessage(ctx, ids[1])
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, msg.ThreadID, reply.ThreadID)
}

func TestSyncAccountIncremental(t *testing.T) {
	env := buildTestEngine(t)
	ctx := context.Background()

	appendTestMessage(env.mailbox, 1, "first", "alice@example.com")

	res, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, 1, res.Inserted)

	appendTestMessage(env.mailbox, 2, "second", "bob@example.com")

	res, err = env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, 1, res.Inserted)

	f, err := env.store.GetFolder(ctx, "acct-1", "INBOX")
	assert.NoError(t, err)
	assert.Equal(t, uint32(2), f.LastSeenUID)

	// Nothing new: no inserts, no spurious growth of the mark.
	res, err = env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, 0, res.Inserted)
}

func TestSyncAccountFlagsAndDeletions(t *testing.T) {
	env := buildTestEngine(t)
	ctx := context.Background()

	appendTestMessage(env.mailbox, 1, "first", "alice@example.com")
	appendTestMessage(env.mailbox, 2, "second", "bob@example.com")

	_, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	// The peer deletes 1 and flags 2.
	env.mailbox.Messages = env.mailbox.Messages[1:]
	env.mailbox.Messages[0].Flags = []string{imap.SeenFlag}

	res, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Updated)

	folderID, err := env.store.GetFolder(ctx, "acct-1", "INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	uids, err := env.store.ListMessageUIDs(ctx, folderID.ID)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{2}, uids)
}

func TestSyncAccountInactiveSkips(t *testing.T) {
	env := buildTestEngine(t)
	ctx := context.Background()

	assert.NoError(t, env.store.SetAccountActive(ctx, "acct-1", false))

	res, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.True(t, res.Skipped)
}

func TestSyncAccountNotFound(t *testing.T) {
	env := buildTestEngine(t)

	_, err := env.engine.SyncAccount(context.Background(), "nobody")
	assert.Error(t, err)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindAccountNotFound, kind)
}

func TestSyncAccountTokenFailure(t *testing.T) {
	env := buildTestEngine(t)

	env.engine.cfg.Tokens = &staticTokens{err: fmt.Errorf("refresh exhausted")}

	_, err := env.engine.SyncAccount(context.Background(), "acct-1")
	assert.Error(t, err)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTokenRefreshFailed, kind)
}

// deactivatingStore flips the account inactive after the first folder
// commit, mimicking a user pausing the account mid-sync.
type deactivatingStore struct {
	store.Store
	accountID string
	once      sync.Once
}

func (d *deactivatingStore) ApplyFolderDelta(ctx context.Context, folderID int64, delta *store.FolderDelta) error {
	if err := d.Store.ApplyFolderDelta(ctx, folderID, delta); err != nil {
		return err
	}

	var err error
	d.once.Do(func() { err = d.Store.SetAccountActive(ctx, d.accountID, false) })
	return err
}

func TestSyncAccountPausesWhenDeactivatedMidRun(t *testing.T) {
	env := buildTestEngine(t)
	ctx := context.Background()

	archive := internal.CreateTestMailbox(t, env.server, "Archive")
	appendTestMessage(env.mailbox, 1, "inbox mail", "alice@example.com")
	appendTestMessage(archive, 1, "archived mail", "bob@example.com")

	env.engine.cfg.Store = &deactivatingStore{Store: env.store, accountID: "acct-1"}

	res, err := env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	// Whichever folder ran first is committed; the other never starts.
	assert.True(t, res.Paused)
	assert.Equal(t, 1, res.Folders)
	assert.Equal(t, 1, res.Inserted)
	assert.Empty(t, res.FolderErrors)

	// Reactivating lets the next pass pick up the remaining folder.
	assert.NoError(t, env.store.SetAccountActive(ctx, "acct-1", true))
	env.engine.cfg.Store = env.store

	res, err = env.engine.SyncAccount(ctx, "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.False(t, res.Paused)
	assert.Equal(t, 2, res.Folders)
	assert.Equal(t, 1, res.Inserted)
}

type staticSessions struct {
	im session.IMAP
}

func (s *staticSessions) Acquire(_ context.Context, _ string, _ session.Kind) (session.Session, error) {
	return s.im, nil
}

func (s *staticSessions) Release(_ session.Session)    {}
func (s *staticSessions) Invalidate(_ session.Session) {}

func TestSyncAccountFolderVanishedBetweenListAndSelect(t *testing.T) {
	env := buildTestEngine(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	im := mocks.NewMockIMAP(ctrl)
	im.EXPECT().List("", "*", gomock.Any()).DoAndReturn(func(_, _ string, ch chan *imap.MailboxInfo) error {
		ch <- &imap.MailboxInfo{Name: "Ghost"}
		close(ch)
		return nil
	})
	im.EXPECT().Select("Ghost", false).Return(nil, fmt.Errorf("no such mailbox"))
	im.EXPECT().Healthy().Return(true).AnyTimes()

	env.engine.cfg.Sessions = &staticSessions{im: im}

	res, err := env.engine.SyncAccount(context.Background(), "acct-1")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	if len(res.FolderErrors) != 1 {
		t.FailNow()
	}

	kind, ok := KindOf(res.FolderErrors[0])
	assert.True(t, ok)
	assert.Equal(t, KindFolderNotFound, kind)
}

// failingSessions always reports a connection failure.
type failingSessions struct {
	mu       sync.Mutex
	attempts int
}

func (f *failingSessions) Acquire(_ context.Context, _ string, _ session.Kind) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return nil, fmt.Errorf("%w: connect refused", session.ErrConnectionFailed)
}

func (f *failingSessions) Release(_ session.Session)    {}
func (f *failingSessions) Invalidate(_ session.Session) {}

func TestSyncAccountConnectionRetryExhaustion(t *testing.T) {
	env := buildTestEngine(t)

	sessions := &failingSessions{}
	env.engine.cfg.Sessions = sessions

	_, err := env.engine.SyncAccount(context.Background(), "acct-1")
	assert.Error(t, err)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindConnectionFailed, kind)
	assert.Equal(t, 3, sessions.attempts)
}
