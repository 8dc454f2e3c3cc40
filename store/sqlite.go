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
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at path, enables WAL
// and foreign keys, and applies any pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// The pragmas ride in the DSN so they apply to every connection the
	// pool opens, not just the one PRAGMA statements happen to land on.
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, acc *Account) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO accounts (id, email, imap_host, smtp_host, sync_window_days, active, created_at)
		VALUES (:id, :email, :imap_host, :smtp_host, :sync_window_days, :active, :created_at)`,
		acc,
	)
	return err
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acc Account
	err := s.db.GetContext(ctx, &acc, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return &acc, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]Account, error) {
	var accs []Account
	err := s.db.SelectContext(ctx, &accs, "SELECT * FROM accounts ORDER BY created_at")
	return accs, err
}

func (s *SQLiteStore) SetAccountActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE accounts SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) UpsertFolder(ctx context.Context, f *Folder) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (account_id, name, uid_validity, last_seen_uid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE SET uid_validity = excluded.uid_validity`,
		f.AccountID, f.Name, f.UIDValidity, f.LastSeenUID,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.GetContext(ctx, &id, "SELECT id FROM folders WHERE account_id = ? AND name = ?", f.AccountID, f.Name)
	if err != nil {
		return 0, err
	}

	f.ID = id
	return id, nil
}

func (s *SQLiteStore) GetFolder(ctx context.Context, accountID, name string) (*Folder, error) {
	var f Folder
	err := s.db.GetContext(ctx, &f, "SELECT * FROM folders WHERE account_id = ? AND name = ?", accountID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return &f, nil
}

func (s *SQLiteStore) ListFolders(ctx context.Context, accountID string) ([]Folder, error) {
	var folders []Folder
	err := s.db.SelectContext(ctx, &folders, "SELECT * FROM folders WHERE account_id = ? ORDER BY name", accountID)
	return folders, err
}

func (s *SQLiteStore) ResetFolder(ctx context.Context, folderID int64, uidValidity uint32) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE folder_id = ?", folderID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE folders SET uid_validity = ?, last_seen_uid = 0 WHERE id = ?",
		uidValidity, folderID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListMessageUIDs(ctx context.Context, folderID int64) ([]uint32, error) {
	var uids []uint32
	err := s.db.SelectContext(ctx, &uids, "SELECT uid FROM messages WHERE folder_id = ? ORDER BY uid", folderID)
	return uids, err
}

// ApplyFolderDelta applies one folder's inserts, flag updates and
// deletions atomically and advances the folder's high-water mark in the
// same transaction, so a reader never observes a half-applied folder.
func (s *SQLiteStore) ApplyFolderDelta(ctx context.Context, folderID int64, delta *FolderDelta) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range delta.Inserts {
		msg := &delta.Inserts[i]
		msg.FolderID = folderID

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO messages (id, account_id, folder_id, thread_id, uid, message_id,
				subject, from_addr, to_addrs, date, flags, body, category, spam_score)
			VALUES (:id, :account_id, :folder_id, :thread_id, :uid, :message_id,
				:subject, :from_addr, :to_addrs, :date, :flags, :body, :category, :spam_score)
			ON CONFLICT(folder_id, uid) DO UPDATE SET flags = excluded.flags`,
			msg,
		)
		if err != nil {
			return fmt.Errorf("inserting message uid %d: %w", msg.UID, err)
		}

		for _, att := range msg.Attachments {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO attachments (message_id, filename, mime_type, size)
				VALUES (?, ?, ?, ?)`,
				msg.ID, att.Filename, att.MIMEType, att.Size,
			)
			if err != nil {
				return fmt.Errorf("inserting attachment: %w", err)
			}
		}
	}

	for _, upd := range delta.FlagUpdates {
		_, err = tx.ExecContext(ctx,
			"UPDATE messages SET flags = ? WHERE folder_id = ? AND uid = ?",
			upd.Flags, folderID, upd.UID,
		)
		if err != nil {
			return fmt.Errorf("updating flags for uid %d: %w", upd.UID, err)
		}
	}

	for _, uid := range delta.DeletedUIDs {
		_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE folder_id = ? AND uid = ?", folderID, uid)
		if err != nil {
			return fmt.Errorf("deleting uid %d: %w", uid, err)
		}
	}

	if delta.LastSeenUID != 0 {
		_, err = tx.ExecContext(ctx, "UPDATE folders SET last_seen_uid = ? WHERE id = ?", delta.LastSeenUID, folderID)
		if err != nil {
			return fmt.Errorf("advancing high-water mark: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.db.GetContext(ctx, &msg, "SELECT * FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &msg.Attachments, "SELECT * FROM attachments WHERE message_id = ?", id)
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

func (s *SQLiteStore) CountMessages(ctx context.Context, folderID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM messages WHERE folder_id = ?", folderID)
	return n, err
}

func (s *SQLiteStore) SetMessageClassification(ctx context.Context, messageID, category string, spamScore float64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET category = ?, spam_score = ? WHERE id = ?",
		category, spamScore, messageID,
	)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) UpsertThread(ctx context.Context, accountID, subjectKey string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (account_id, subject_key) VALUES (?, ?)
		ON CONFLICT(account_id, subject_key) DO NOTHING`,
		accountID, subjectKey,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.GetContext(ctx, &id, "SELECT id FROM threads WHERE account_id = ? AND subject_key = ?", accountID, subjectKey)
	return id, err
}

func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}

	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}

	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}

func (s *SQLiteStore) UpsertSearchIndex(ctx context.Context, entry *SearchIndexEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_index (message_id, summary, vector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			summary = excluded.summary,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		entry.MessageID, entry.Summary, encodeVector(entry.Vector), entry.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetSearchIndex(ctx context.Context, messageID string) (*SearchIndexEntry, error) {
	var entry SearchIndexEntry
	err := s.db.GetContext(ctx, &entry, "SELECT * FROM search_index WHERE message_id = ?", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	entry.Vector = decodeVector(entry.VectorRaw)
	return &entry, nil
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c *ContactCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_cache (account_id, email, name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, email) DO UPDATE SET
			name = excluded.name,
			last_seen = excluded.last_seen`,
		c.AccountID, c.Email, c.Name, c.LastSeen,
	)
	return err
}

func (s *SQLiteStore) CreateOutbox(ctx context.Context, msg *OutboxMessage) error {
	if msg.QueuedAt.IsZero() {
		msg.QueuedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outbox (id, account_id, from_addr, to_addrs, subject, body,
			state, send_after, retry_count, queued_at)
		VALUES (:id, :account_id, :from_addr, :to_addrs, :subject, :body,
			:state, :send_after, :retry_count, :queued_at)`,
		msg,
	)
	return err
}

func (s *SQLiteStore) GetOutbox(ctx context.Context, id string) (*OutboxMessage, error) {
	var msg OutboxMessage
	err := s.db.GetContext(ctx, &msg, "SELECT * FROM outbox WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return &msg, nil
}

func (s *SQLiteStore) TransitionOutbox(ctx context.Context, id string, from, to OutboxState) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET state = ? WHERE id = ? AND state = ?",
		to, id, from,
	)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetOutbox(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStateConflict
	}

	return nil
}

func (s *SQLiteStore) SetOutboxRetry(ctx context.Context, id string, retryCount int, sendAfter time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE outbox SET retry_count = ?, send_after = ? WHERE id = ?",
		retryCount, sendAfter, id,
	)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) DueOutbox(ctx context.Context, now time.Time) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM outbox
		WHERE state IN (?, ?) AND send_after <= ?
		ORDER BY send_after`,
		OutboxPendingSend, OutboxQueuedOffline, now,
	)
	return msgs, err
}

func (s *SQLiteStore) ListOutboxInState(ctx context.Context, state OutboxState) ([]OutboxMessage, error) {
	var msgs []OutboxMessage
	err := s.db.SelectContext(ctx, &msgs, "SELECT * FROM outbox WHERE state = ? ORDER BY queued_at", state)
	return msgs, err
}

func (s *SQLiteStore) RecoverOutbox(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM outbox WHERE state IN (?, ?)",
		OutboxPendingSend, OutboxSending,
	)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE outbox SET state = ? WHERE state IN (?, ?)",
		OutboxComposing, OutboxPendingSend, OutboxSending,
	)
	if err != nil {
		return nil, err
	}

	return ids, nil
}
