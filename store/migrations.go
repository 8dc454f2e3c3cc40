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

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE accounts (
	id               TEXT PRIMARY KEY,
	email            TEXT NOT NULL UNIQUE,
	imap_host        TEXT NOT NULL,
	smtp_host        TEXT NOT NULL,
	sync_window_days INTEGER NOT NULL DEFAULT 30,
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE folders (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	uid_validity  INTEGER NOT NULL DEFAULT 0,
	last_seen_uid INTEGER NOT NULL DEFAULT 0,
	UNIQUE(account_id, name)
);

CREATE TABLE threads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	subject_key TEXT NOT NULL,
	UNIQUE(account_id, subject_key)
);

CREATE TABLE messages (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	folder_id  INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	thread_id  INTEGER NOT NULL DEFAULT 0,
	uid        INTEGER NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	from_addr  TEXT NOT NULL DEFAULT '',
	to_addrs   TEXT NOT NULL DEFAULT '',
	date       TIMESTAMP,
	flags      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	spam_score REAL NOT NULL DEFAULT 0,
	UNIQUE(folder_id, uid)
);

CREATE TABLE attachments (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename   TEXT NOT NULL DEFAULT '',
	mime_type  TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE search_index (
	message_id TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	summary    TEXT NOT NULL DEFAULT '',
	vector     BLOB,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE contact_cache (
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	last_seen  TIMESTAMP NOT NULL,
	PRIMARY KEY(account_id, email)
);

CREATE TABLE outbox (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	from_addr   TEXT NOT NULL,
	to_addrs    TEXT NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	send_after  TIMESTAMP NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	queued_at   TIMESTAMP NOT NULL
);

CREATE INDEX idx_messages_folder ON messages(folder_id);
CREATE INDEX idx_outbox_state ON outbox(state, send_after);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
