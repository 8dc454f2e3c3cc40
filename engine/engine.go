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
	"time"

	"github.com/emersion/go-imap"
	log "github.com/sirupsen/logrus"

	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
)

func New(cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 10 * time.Minute
	}

	return &Engine{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncAccount runs one full sync pass for the account. Each folder's
// changes are applied in a single transaction, so a failure part way
// through keeps all completed folders.
func (e *Engine) SyncAccount(ctx context.Context, accountID string) (*Result, error) {
	start := e.now()
	res := &Result{AccountID: accountID}

	acc, err := e.cfg.Store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Kind: KindAccountNotFound, AccountID: accountID, Err: err}
	} else if err != nil {
		return nil, &Error{Kind: KindSyncFailed, AccountID: accountID, Err: err}
	}

	if !acc.Active {
		res.Skipped = true
		log.WithFields(log.Fields{"account": accountID}).Trace("sync_skipped_inactive")
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxDuration)
	defer cancel()

	if _, err := e.cfg.Tokens.Token(ctx, accountID); err != nil {
		return nil, &Error{Kind: KindTokenRefreshFailed, AccountID: accountID, Err: err}
	}

	im, err := e.acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Release invalidates an unhealthy session itself.
	defer e.cfg.Sessions.Release(im)

	names, err := listFolders(im)
	if err != nil {
		res.Duration = e.now().Sub(start)
		return res, e.classify(ctx, accountID, "", err)
	}

	for _, name := range names {
		if ctx.Err() != nil {
			res.Duration = e.now().Sub(start)
			return res, &Error{Kind: KindTimeout, AccountID: accountID, Err: ctx.Err()}
		}

		// An account deactivated mid-run finishes the current folder
		// and pauses; applied folders are kept.
		cur, err := e.cfg.Store.GetAccount(ctx, accountID)
		if err == nil && !cur.Active {
			res.Paused = true
			log.WithFields(log.Fields{"account": accountID}).Info("sync_paused_inactive")
			break
		}

		if err := e.syncFolder(ctx, im, acc, name, res); err != nil {
			if !im.Healthy() || ctx.Err() != nil {
				res.Duration = e.now().Sub(start)
				return res, e.classify(ctx, accountID, name, err)
			}

			var se *Error
			if !errors.As(err, &se) {
				se = &Error{
					Kind:      KindSyncFailed,
					AccountID: accountID,
					Folder:    name,
					Err:       err,
				}
			}

			res.FolderErrors = append(res.FolderErrors, se)
			continue
		}

		res.Folders++
	}

	res.Duration = e.now().Sub(start)

	log.WithFields(log.Fields{
		"account":  accountID,
		"folders":  res.Folders,
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"deleted":  res.Deleted,
		"paused":   res.Paused,
	}).Info("sync_complete")
	return res, nil
}

func (e *Engine) classify(ctx context.Context, accountID, folder string, err error) error {
	kind := KindSyncFailed
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, session.ErrConnectionFailed), errors.Is(err, pool.ErrDialTimeout):
		kind = KindConnectionFailed
	default:
		var se *Error
		if errors.As(err, &se) {
			return se
		}
	}

	return &Error{Kind: kind, AccountID: accountID, Folder: folder, Err: err}
}

// acquire dials through the pool, retrying connection failures with
// doubling delays up to MaxAttempts.
func (e *Engine) acquire(ctx context.Context, accountID string) (session.IMAP, error) {
	delay := e.cfg.BaseDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		s, err := e.cfg.Sessions.Acquire(ctx, accountID, session.KindIMAP)
		if err == nil {
			return s.(session.IMAP), nil
		}

		lastErr = err
		if !errors.Is(err, session.ErrConnectionFailed) && !errors.Is(err, pool.ErrDialTimeout) {
			return nil, &Error{Kind: KindSyncFailed, AccountID: accountID, Err: err}
		}

		if attempt >= e.cfg.MaxAttempts {
			break
		}

		log.WithFields(log.Fields{
			"account": accountID,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("sync_connect_retry")

		if err := e.sleep(ctx, delay); err != nil {
			return nil, &Error{Kind: KindTimeout, AccountID: accountID, Err: err}
		}
		delay *= 2
	}

	return nil, &Error{Kind: KindConnectionFailed, AccountID: accountID, Err: lastErr}
}

func listFolders(im session.IMAP) ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() { done <- im.List("", "*", ch) }()

	var names []string
	for mbox := range ch {
		selectable := true
		for _, attr := range mbox.Attributes {
			if attr == imap.NoSelectAttr {
				selectable = false
				break
			}
		}

		if selectable {
			names = append(names, mbox.Name)
		}
	}

	if err := <-done; err != nil {
		return nil, err
	}

	return names, nil
}

func (e *Engine) syncFolder(ctx context.Context, im session.IMAP, acc *store.Account, name string, res *Result) error {
	status, err := im.Select(name, false)
	if err != nil {
		// Typically the folder was deleted between LIST and SELECT.
		return &Error{Kind: KindFolderNotFound, AccountID: acc.ID, Folder: name, Err: err}
	}

	prev, err := e.cfg.Store.GetFolder(ctx, acc.ID, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	folderID, err := e.cfg.Store.UpsertFolder(ctx, &store.Folder{
		AccountID:   acc.ID,
		Name:        name,
		UIDValidity: status.UidValidity,
	})
	if err != nil {
		return err
	}

	var lastSeen uint32
	if prev != nil {
		lastSeen = prev.LastSeenUID

		if prev.UIDValidity != 0 && prev.UIDValidity != status.UidValidity {
			// The server renumbered the folder; local UIDs mean
			// nothing any more.
			log.WithFields(log.Fields{
				"account": acc.ID,
				"folder":  name,
				"old":     prev.UIDValidity,
				"new":     status.UidValidity,
			}).Warn("folder_uidvalidity_changed")

			if err := e.cfg.Store.ResetFolder(ctx, folderID, status.UidValidity); err != nil {
				return err
			}
			lastSeen = 0
		}
	}

	delta := &store.FolderDelta{LastSeenUID: lastSeen}

	newUIDs, err := e.searchNew(im, acc, lastSeen)
	if err != nil {
		return err
	}

	var inserted []string
	if len(newUIDs) > 0 {
		msgs, err := e.fetchNew(im, acc.ID, folderID, newUIDs)
		if err != nil {
			return err
		}

		for i := range msgs {
			threadID, err := e.cfg.Store.UpsertThread(ctx, acc.ID, subjectKey(msgs[i].Subject))
			if err != nil {
				return err
			}
			msgs[i].ThreadID = threadID

			if msgs[i].FromAddr != "" {
				if err := e.cfg.Store.UpsertContact(ctx, &store.ContactCacheEntry{
					AccountID: acc.ID,
					Email:     msgs[i].FromAddr,
					LastSeen:  msgs[i].Date,
				}); err != nil {
					return err
				}
			}

			if msgs[i].UID > delta.LastSeenUID {
				delta.LastSeenUID = msgs[i].UID
			}

			inserted = append(inserted, msgs[i].ID)
		}

		delta.Inserts = msgs
	}

	// Flag changes and deletions within the already-seen range.
	known, err := e.cfg.Store.ListMessageUIDs(ctx, folderID)
	if err != nil {
		return err
	}

	if len(known) > 0 && lastSeen > 0 {
		present, err := e.fetchFlags(im, lastSeen)
		if err != nil {
			return err
		}

		for _, uid := range known {
			if flags, ok := present[uid]; ok {
				delta.FlagUpdates = append(delta.FlagUpdates, store.FlagUpdate{UID: uid, Flags: flags})
			} else {
				delta.DeletedUIDs = append(delta.DeletedUIDs, uid)
			}
		}
	}

	if err := e.cfg.Store.ApplyFolderDelta(ctx, folderID, delta); err != nil {
		return err
	}

	res.Inserted += len(delta.Inserts)
	res.Updated += len(delta.FlagUpdates)
	res.Deleted += len(delta.DeletedUIDs)

	if len(inserted) > 0 && e.cfg.Publisher != nil {
		e.cfg.Publisher.Publish(acc.ID, inserted)
	}

	log.WithFields(log.Fields{
		"account":  acc.ID,
		"folder":   name,
		"inserted": len(delta.Inserts),
		"deleted":  len(delta.DeletedUIDs),
		"mark":     delta.LastSeenUID,
	}).Trace("folder_synced")
	return nil
}

// searchNew finds UIDs above the high-water mark, or everything within
// the account's sync window on the first pass.
func (e *Engine) searchNew(im session.IMAP, acc *store.Account, lastSeen uint32) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}
	if lastSeen == 0 {
		if acc.SyncWindowDays > 0 {
			criteria.SentSince = e.now().AddDate(0, 0, -acc.SyncWindowDays)
		}
	} else {
		seqset := new(imap.SeqSet)
		seqset.AddRange(lastSeen+1, 0)
		criteria.Uid = seqset
	}

	uids, err := im.UIDSearch(criteria)
	if err != nil {
		return nil, err
	}

	// Servers answer n:* with at least one UID even when nothing is
	// newer than n.
	fresh := uids[:0]
	for _, uid := range uids {
		if uid > lastSeen {
			fresh = append(fresh, uid)
		}
	}

	return fresh, nil
}

func (e *Engine) fetchNew(im session.IMAP, accountID string, folderID int64, uids []uint32) ([]store.Message, error) {
	section, err := imap.ParseBodySectionName(imap.FetchRFC822)
	if err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchRFC822}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- im.UIDFetch(seqset, items, ch) }()

	var msgs []store.Message
	for msg := range ch {
		msgs = append(msgs, buildMessage(accountID, folderID, msg, section))
	}

	if err := <-done; err != nil {
		return nil, err
	}

	return msgs, nil
}

// fetchFlags returns uid → flags for everything at or below the
// high-water mark.
func (e *Engine) fetchFlags(im session.IMAP, lastSeen uint32) (map[uint32]string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddRange(1, lastSeen)

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- im.UIDFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchFlags}, ch) }()

	present := map[uint32]string{}
	for msg := range ch {
		present[msg.Uid] = joinFlags(msg.Flags)
	}

	if err := <-done; err != nil {
		return nil, err
	}

	return present, nil
}
