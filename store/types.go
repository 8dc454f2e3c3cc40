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
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrStateConflict = errors.New("outbox state conflict")
)

type Account struct {
	ID             string    `db:"id"`
	Email          string    `db:"email"`
	IMAPHost       string    `db:"imap_host"`
	SMTPHost       string    `db:"smtp_host"`
	SyncWindowDays int       `db:"sync_window_days"`
	Active         bool      `db:"active"`
	CreatedAt      time.Time `db:"created_at"`
}

type Folder struct {
	ID          int64  `db:"id"`
	AccountID   string `db:"account_id"`
	Name        string `db:"name"`
	UIDValidity uint32 `db:"uid_validity"`
	LastSeenUID uint32 `db:"last_seen_uid"`
}

type Message struct {
	ID          string    `db:"id"`
	AccountID   string    `db:"account_id"`
	FolderID    int64     `db:"folder_id"`
	ThreadID    int64     `db:"thread_id"`
	UID         uint32    `db:"uid"`
	MessageID   string    `db:"message_id"`
	Subject     string    `db:"subject"`
	FromAddr    string    `db:"from_addr"`
	ToAddrs     string    `db:"to_addrs"`
	Date        time.Time `db:"date"`
	Flags       string    `db:"flags"`
	Body        string    `db:"body"`
	Category    string    `db:"category"`
	SpamScore   float64   `db:"spam_score"`
	Attachments []Attachment
}

type Thread struct {
	ID         int64  `db:"id"`
	AccountID  string `db:"account_id"`
	SubjectKey string `db:"subject_key"`
}

type Attachment struct {
	ID        int64  `db:"id"`
	MessageID string `db:"message_id"`
	Filename  string `db:"filename"`
	MIMEType  string `db:"mime_type"`
	Size      int64  `db:"size"`
}

type SearchIndexEntry struct {
	MessageID string    `db:"message_id"`
	Summary   string    `db:"summary"`
	Vector    []float32 `db:"-"`
	VectorRaw []byte    `db:"vector"`
	UpdatedAt time.Time `db:"updated_at"`
}

type ContactCacheEntry struct {
	AccountID string    `db:"account_id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	LastSeen  time.Time `db:"last_seen"`
}

type OutboxState string

const (
	OutboxComposing     OutboxState = "composing"
	OutboxPendingSend   OutboxState = "pending_send"
	OutboxSending       OutboxState = "sending"
	OutboxSent          OutboxState = "sent"
	OutboxQueuedOffline OutboxState = "queued_offline"
	OutboxFailed        OutboxState = "failed"
)

type OutboxMessage struct {
	ID         string      `db:"id"`
	AccountID  string      `db:"account_id"`
	FromAddr   string      `db:"from_addr"`
	ToAddrs    string      `db:"to_addrs"`
	Subject    string      `db:"subject"`
	Body       string      `db:"body"`
	State      OutboxState `db:"state"`
	SendAfter  time.Time   `db:"send_after"`
	RetryCount int         `db:"retry_count"`
	QueuedAt   time.Time   `db:"queued_at"`
}

// FlagUpdate alters the flags of an already-synced message, addressed
// by UID within its folder.
type FlagUpdate struct {
	UID   uint32
	Flags string
}

// FolderDelta is one folder's worth of remote changes, applied in a
// single transaction.
type FolderDelta struct {
	Inserts     []Message
	FlagUpdates []FlagUpdate
	DeletedUIDs []uint32
	LastSeenUID uint32
}

type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, acc *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountActive(ctx context.Context, id string, active bool) error
	// DeleteAccount cascades to folders, messages, threads, outbox,
	// search index and contact cache rows.
	DeleteAccount(ctx context.Context, id string) error

	// Folders
	UpsertFolder(ctx context.Context, f *Folder) (int64, error)
	GetFolder(ctx context.Context, accountID, name string) (*Folder, error)
	ListFolders(ctx context.Context, accountID string) ([]Folder, error)

	// ResetFolder drops every message in the folder and zeroes its
	// high-water mark, for when the server changes UIDVALIDITY.
	ResetFolder(ctx context.Context, folderID int64, uidValidity uint32) error

	// Messages
	ApplyFolderDelta(ctx context.Context, folderID int64, delta *FolderDelta) error
	ListMessageUIDs(ctx context.Context, folderID int64) ([]uint32, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	CountMessages(ctx context.Context, folderID int64) (int, error)
	SetMessageClassification(ctx context.Context, messageID, category string, spamScore float64) error

	// Threads
	UpsertThread(ctx context.Context, accountID, subjectKey string) (int64, error)

	// Search index
	UpsertSearchIndex(ctx context.Context, entry *SearchIndexEntry) error
	GetSearchIndex(ctx context.Context, messageID string) (*SearchIndexEntry, error)

	// Contacts
	UpsertContact(ctx context.Context, c *ContactCacheEntry) error

	// Outbox
	CreateOutbox(ctx context.Context, msg *OutboxMessage) error
	GetOutbox(ctx context.Context, id string) (*OutboxMessage, error)
	// TransitionOutbox is a guarded state change; it fails with
	// ErrStateConflict unless the row is currently in "from".
	TransitionOutbox(ctx context.Context, id string, from, to OutboxState) error
	SetOutboxRetry(ctx context.Context, id string, retryCount int, sendAfter time.Time) error
	DueOutbox(ctx context.Context, now time.Time) ([]OutboxMessage, error)
	ListOutboxInState(ctx context.Context, state OutboxState) ([]OutboxMessage, error)
	// RecoverOutbox demotes rows left in pending_send or sending by a
	// previous process life back to composing, returning their IDs.
	RecoverOutbox(ctx context.Context) ([]string, error)

	Close() error
}
