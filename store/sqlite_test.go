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

package store

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func buildTestStore(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(path.Join(t.TempDir(), "mailvault.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeTestAccount(t *testing.T, s *SQLiteStore) *Account {
	acc := &Account{
		ID:             uuid.NewString(),
		Email:          uuid.NewString() + "@example.com",
		IMAPHost:       "imap.example.com:143",
		SMTPHost:       "smtp.example.com:587",
		SyncWindowDays: 30,
		Active:         true,
	}

	assert.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

func TestForeignKeysEnforcedOnEveryConnection(t *testing.T) {
	s := buildTestStore(t)

	// Force every query onto a freshly-opened connection. The pragma is
	// carried in the DSN, so each one must come up with it enabled.
	s.db.SetMaxIdleConns(0)

	for i := 0; i < 5; i++ {
		var enabled int
		assert.NoError(t, s.db.Get(&enabled, "PRAGMA foreign_keys"))
		assert.Equal(t, 1, enabled)
	}
}

func TestAccountLifecycle(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)

	got, err := s.GetAccount(ctx, acc.ID)
	assert.NoError(t, err)
	assert.Equal(t, acc.Email, got.Email)
	assert.True(t, got.Active)

	assert.NoError(t, s.SetAccountActive(ctx, acc.ID, false))
	got, err = s.GetAccount(ctx, acc.ID)
	assert.NoError(t, err)
	assert.False(t, got.Active)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccountCascades(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)

	folderID, err := s.UpsertFolder(ctx, &Folder{AccountID: acc.ID, Name: "INBOX", UIDValidity: 1})
	assert.NoError(t, err)

	msgID := uuid.NewString()
	err = s.ApplyFolderDelta(ctx, folderID, &FolderDelta{
		Inserts: []Message{{
			ID:        msgID,
			AccountID: acc.ID,
			UID:       1,
			Subject:   "hello",
			Date:      time.Now(),
		}},
		LastSeenUID: 1,
	})
	assert.NoError(t, err)

	assert.NoError(t, s.UpsertSearchIndex(ctx, &SearchIndexEntry{MessageID: msgID, Summary: "hi"}))
	assert.NoError(t, s.DeleteAccount(ctx, acc.ID))

	_, err = s.GetMessage(ctx, msgID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetFolder(ctx, acc.ID, "INBOX")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSearchIndex(ctx, msgID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyFolderDelta(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)
	folderID, err := s.UpsertFolder(ctx, &Folder{AccountID: acc.ID, Name: "INBOX", UIDValidity: 7})
	assert.NoError(t, err)

	id1, id2 := uuid.NewString(), uuid.NewString()
	err = s.ApplyFolderDelta(ctx, folderID, &FolderDelta{
		Inserts: []Message{
			{ID: id1, AccountID: acc.ID, UID: 10, Subject: "one", Flags: "\\Seen", Date: time.Now()},
			{ID: id2, AccountID: acc.ID, UID: 11, Subject: "two", Date: time.Now(),
				Attachments: []Attachment{{Filename: "a.pdf", MIMEType: "application/pdf", Size: 1024}}},
		},
		LastSeenUID: 11,
	})
	assert.NoError(t, err)

	n, err := s.CountMessages(ctx, folderID)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := s.GetFolder(ctx, acc.ID, "INBOX")
	assert.NoError(t, err)
	assert.Equal(t, uint32(11), f.LastSeenUID)

	msg, err := s.GetMessage(ctx, id2)
	assert.NoError(t, err)
	assert.Len(t, msg.Attachments, 1)
	assert.Equal(t, "a.pdf", msg.Attachments[0].Filename)

	// Second delta: flag update + deletion, mark advances again.
	err = s.ApplyFolderDelta(ctx, folderID, &FolderDelta{
		FlagUpdates: []FlagUpdate{{UID: 11, Flags: "\\Seen \\Answered"}},
		DeletedUIDs: []uint32{10},
		LastSeenUID: 12,
	})
	assert.NoError(t, err)

	_, err = s.GetMessage(ctx, id1)
	assert.ErrorIs(t, err, ErrNotFound)

	msg, err = s.GetMessage(ctx, id2)
	assert.NoError(t, err)
	assert.Equal(t, "\\Seen \\Answered", msg.Flags)
}

func TestOutboxGuardedTransition(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)
	msg := &OutboxMessage{
		ID:        uuid.NewString(),
		AccountID: acc.ID,
		FromAddr:  acc.Email,
		ToAddrs:   "to@example.com",
		State:     OutboxPendingSend,
		SendAfter: time.Now().Add(5 * time.Second),
	}

	assert.NoError(t, s.CreateOutbox(ctx, msg))
	assert.NoError(t, s.TransitionOutbox(ctx, msg.ID, OutboxPendingSend, OutboxSending))

	// Same transition again must conflict; the row moved on.
	err := s.TransitionOutbox(ctx, msg.ID, OutboxPendingSend, OutboxSending)
	assert.ErrorIs(t, err, ErrStateConflict)

	err = s.TransitionOutbox(ctx, "missing", OutboxPendingSend, OutboxSending)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutboxDueAndRecover(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)
	now := time.Now().UTC()

	due := &OutboxMessage{
		ID: uuid.NewString(), AccountID: acc.ID, FromAddr: acc.Email, ToAddrs: "a@example.com",
		State: OutboxPendingSend, SendAfter: now.Add(-time.Second),
	}
	notDue := &OutboxMessage{
		ID: uuid.NewString(), AccountID: acc.ID, FromAddr: acc.Email, ToAddrs: "b@example.com",
		State: OutboxPendingSend, SendAfter: now.Add(time.Hour),
	}

	assert.NoError(t, s.CreateOutbox(ctx, due))
	assert.NoError(t, s.CreateOutbox(ctx, notDue))

	msgs, err := s.DueOutbox(ctx, now)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, due.ID, msgs[0].ID)

	// A relaunch must never auto-resume; both rows demote to composing.
	ids, err := s.RecoverOutbox(ctx)
	assert.NoError(t, err)
	assert.Len(t, ids, 2)

	drafts, err := s.ListOutboxInState(ctx, OutboxComposing)
	assert.NoError(t, err)
	assert.Len(t, drafts, 2)
}

func TestSearchIndexRoundTrip(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)
	folderID, err := s.UpsertFolder(ctx, &Folder{AccountID: acc.ID, Name: "INBOX"})
	assert.NoError(t, err)

	msgID := uuid.NewString()
	err = s.ApplyFolderDelta(ctx, folderID, &FolderDelta{
		Inserts: []Message{{ID: msgID, AccountID: acc.ID, UID: 1, Date: time.Now()}},
	})
	assert.NoError(t, err)

	vec := []float32{0.25, -1.5, 3}
	assert.NoError(t, s.UpsertSearchIndex(ctx, &SearchIndexEntry{
		MessageID: msgID,
		Summary:   "a summary",
		Vector:    vec,
	}))

	got, err := s.GetSearchIndex(ctx, msgID)
	assert.NoError(t, err)
	assert.Equal(t, vec, got.Vector)
	assert.Equal(t, "a summary", got.Summary)
}

func TestThreadsAndContacts(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)

	id1, err := s.UpsertThread(ctx, acc.ID, "re: hello")
	assert.NoError(t, err)
	id2, err := s.UpsertThread(ctx, acc.ID, "re: hello")
	assert.NoError(t, err)
	assert.Equal(t, id1, id2)

	assert.NoError(t, s.UpsertContact(ctx, &ContactCacheEntry{
		AccountID: acc.ID,
		Email:     "friend@example.com",
		Name:      "Friend",
		LastSeen:  time.Now(),
	}))
	assert.NoError(t, s.UpsertContact(ctx, &ContactCacheEntry{
		AccountID: acc.ID,
		Email:     "friend@example.com",
		Name:      "Friend Renamed",
		LastSeen:  time.Now(),
	}))
}

func TestResetFolderClearsMessages(t *testing.T) {
	s := buildTestStore(t)
	ctx := context.Background()

	acc := makeTestAccount(t, s)
	folderID, err := s.UpsertFolder(ctx, &Folder{AccountID: acc.ID, Name: "INBOX", UIDValidity: 7})
	assert.NoError(t, err)

	err = s.ApplyFolderDelta(ctx, folderID, &FolderDelta{
		Inserts: []Message{
			{ID: uuid.NewString(), AccountID: acc.ID, UID: 10, Subject: "one", Date: time.Now()},
		},
		LastSeenUID: 10,
	})
	assert.NoError(t, err)

	uids, err := s.ListMessageUIDs(ctx, folderID)
	assert.NoError(t, err)
	assert.Equal(t, []uint32{10}, uids)

	assert.NoError(t, s.ResetFolder(ctx, folderID, 8))

	uids, err = s.ListMessageUIDs(ctx, folderID)
	assert.NoError(t, err)
	assert.Empty(t, uids)

	f, err := s.GetFolder(ctx, acc.ID, "INBOX")
	assert.NoError(t, err)
	assert.Equal(t, uint32(8), f.UIDValidity)
	assert.Equal(t, uint32(0), f.LastSeenUID)
}
