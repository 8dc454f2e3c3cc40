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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
)

func NewQueue(cfg Config) *Queue {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Second
	}

	if cfg.MaxSendRetries <= 0 {
		cfg.MaxSendRetries = 5
	}

	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 30 * time.Second
	}

	if cfg.MaxQueueAge <= 0 {
		cfg.MaxQueueAge = 72 * time.Hour
	}

	q := &Queue{
		cfg:      cfg,
		claims:   map[string]*pool.Claim{},
		kick:     make(chan struct{}, 1),
		wantQuit: make(chan struct{}),
		hasQuit:  make(chan struct{}),
		now:      time.Now,
	}

	go q.run()
	return q
}

// Recover demotes messages stranded in pending_send or sending by a
// previous process life back to composing. They are never auto-sent;
// the user must resubmit. Call once at startup, before any Submit.
func (q *Queue) Recover(ctx context.Context) ([]string, error) {
	ids, err := q.cfg.Store.RecoverOutbox(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		q.notify(Notification{ID: id, State: store.OutboxComposing})
	}

	if len(ids) > 0 {
		log.WithFields(log.Fields{"count": len(ids)}).Info("outbox_recovered")
	}

	return ids, nil
}

// Submit persists the message as pending_send before any countdown
// exists, so a crash during the undo window leaves a durable record.
// An undoWindow of zero sends immediately.
func (q *Queue) Submit(ctx context.Context, msg *store.OutboxMessage, undoWindow time.Duration) error {
	if atomic.LoadInt32(&q.shutdown) != 0 {
		return ErrClosed
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	now := q.now()
	msg.State = store.OutboxPendingSend
	msg.SendAfter = now.Add(undoWindow)
	msg.QueuedAt = now

	if err := q.cfg.Store.CreateOutbox(ctx, msg); err != nil {
		return err
	}

	q.mtx.Lock()
	q.claims[msg.ID] = &pool.Claim{}
	q.mtx.Unlock()

	log.WithFields(log.Fields{
		"id":     msg.ID,
		"window": undoWindow,
	}).Trace("outbox_submitted")

	if undoWindow == 0 {
		q.wake()
	}

	return nil
}

// Undo returns a pending message to composing. It is synchronous: once
// it returns nil, the message will never be transmitted.
func (q *Queue) Undo(ctx context.Context, id string) error {
	if !q.claim(id).Acquire() {
		// The runner got there first.
		return ErrNotUndoable
	}

	err := q.cfg.Store.TransitionOutbox(ctx, id, store.OutboxPendingSend, store.OutboxComposing)
	if errors.Is(err, store.ErrStateConflict) {
		return ErrNotUndoable
	} else if err != nil {
		return err
	}

	q.dropClaim(id)
	log.WithFields(log.Fields{"id": id}).Trace("outbox_undo")
	return nil
}

func (q *Queue) Close() error {
	if !atomic.CompareAndSwapInt32(&q.shutdown, 0, 1) {
		return nil
	}

	close(q.wantQuit)
	<-q.hasQuit
	return nil
}

func (q *Queue) claim(id string) *pool.Claim {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	c, ok := q.claims[id]
	if !ok {
		c = &pool.Claim{}
		q.claims[id] = c
	}

	return c
}

func (q *Queue) dropClaim(id string) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	delete(q.claims, id)
}

func (q *Queue) wake() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *Queue) notify(n Notification) {
	if q.cfg.Notifications == nil {
		return
	}

	select {
	case q.cfg.Notifications <- n:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.hasQuit)

	t := time.NewTicker(q.cfg.ScanInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
		case <-q.kick:
		case <-q.wantQuit:
			return
		}

		q.scan(context.Background())
	}
}

func (q *Queue) scan(ctx context.Context) {
	msgs, err := q.cfg.Store.DueOutbox(ctx, q.now())
	if err != nil {
		log.WithError(err).Warn("outbox_scan_failed")
		return
	}

	for i := range msgs {
		select {
		case <-q.wantQuit:
			return
		default:
		}

		q.process(ctx, &msgs[i])
	}
}

func (q *Queue) process(ctx context.Context, msg *store.OutboxMessage) {
	acc, err := q.cfg.Store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		log.WithError(err).WithField("id", msg.ID).Warn("outbox_account_lookup_failed")
		return
	}

	if !acc.Active {
		// Left due; picked up again once the account is reactivated.
		return
	}

	switch msg.State {
	case store.OutboxPendingSend:
		if !q.claim(msg.ID).Acquire() {
			// An undo won the window.
			return
		}

		err := q.cfg.Store.TransitionOutbox(ctx, msg.ID, store.OutboxPendingSend, store.OutboxSending)
		if errors.Is(err, store.ErrStateConflict) {
			// The row moved under us; the claim stays settled.
			return
		} else if err != nil {
			// Transient store failure. Give the claim back so the next
			// scan, or an undo, can have another go.
			q.dropClaim(msg.ID)
			log.WithError(err).WithField("id", msg.ID).Warn("outbox_transition_failed")
			return
		}
	case store.OutboxQueuedOffline:
		if q.now().Sub(msg.QueuedAt) > q.cfg.MaxQueueAge {
			q.fail(ctx, msg, store.OutboxQueuedOffline, fmt.Errorf("queued longer than %v", q.cfg.MaxQueueAge))
			return
		}

		if err := q.cfg.Store.TransitionOutbox(ctx, msg.ID, store.OutboxQueuedOffline, store.OutboxSending); err != nil {
			return
		}
	default:
		return
	}

	q.transmit(ctx, msg)
}

func (q *Queue) transmit(ctx context.Context, msg *store.OutboxMessage) {
	from, to, err := parseEnvelope(msg)
	if err != nil {
		// Malformed addresses never get better; no retry.
		q.fail(ctx, msg, store.OutboxSending, err)
		return
	}

	payload, err := composeRFC822(msg, from, to, q.now())
	if err != nil {
		q.fail(ctx, msg, store.OutboxSending, err)
		return
	}

	s, err := q.cfg.Sessions.Acquire(ctx, msg.AccountID, session.KindSMTP)
	if err != nil {
		q.deferSend(ctx, msg, err)
		return
	}

	sm := s.(session.SMTP)
	err = sm.Send(from.Address, recipients(to), strings.NewReader(payload))

	// Release invalidates a poisoned session itself.
	q.cfg.Sessions.Release(s)

	if err != nil {
		q.deferSend(ctx, msg, err)
		return
	}

	if err := q.cfg.Store.TransitionOutbox(ctx, msg.ID, store.OutboxSending, store.OutboxSent); err != nil {
		log.WithError(err).WithField("id", msg.ID).Warn("outbox_sent_transition_failed")
		return
	}

	q.dropClaim(msg.ID)
	q.notify(Notification{ID: msg.ID, State: store.OutboxSent})

	log.WithFields(log.Fields{
		"id":      msg.ID,
		"account": msg.AccountID,
	}).Info("outbox_sent")
}

// deferSend parks a failed message as queued_offline with a doubling
// retry delay, or fails it once the retry budget is spent.
func (q *Queue) deferSend(ctx context.Context, msg *store.OutboxMessage, cause error) {
	if msg.RetryCount >= q.cfg.MaxSendRetries {
		q.fail(ctx, msg, store.OutboxSending, cause)
		return
	}

	delay := q.cfg.RetryBaseDelay << uint(msg.RetryCount)

	if err := q.cfg.Store.TransitionOutbox(ctx, msg.ID, store.OutboxSending, store.OutboxQueuedOffline); err != nil {
		return
	}

	if err := q.cfg.Store.SetOutboxRetry(ctx, msg.ID, msg.RetryCount+1, q.now().Add(delay)); err != nil {
		log.WithError(err).WithField("id", msg.ID).Warn("outbox_retry_update_failed")
		return
	}

	log.WithFields(log.Fields{
		"id":    msg.ID,
		"retry": msg.RetryCount + 1,
		"delay": delay,
	}).WithError(cause).Warn("outbox_send_deferred")
}

func (q *Queue) fail(ctx context.Context, msg *store.OutboxMessage, from store.OutboxState, cause error) {
	if err := q.cfg.Store.TransitionOutbox(ctx, msg.ID, from, store.OutboxFailed); err != nil {
		return
	}

	q.dropClaim(msg.ID)
	q.notify(Notification{ID: msg.ID, State: store.OutboxFailed, Err: cause})

	log.WithFields(log.Fields{"id": msg.ID}).WithError(cause).Error("outbox_failed")
}

// parseEnvelope validates the stored addresses. Only parsed addr-specs
// ever reach the SMTP envelope or the message header.
func parseEnvelope(msg *store.OutboxMessage) (*netmail.Address, []*netmail.Address, error) {
	from, err := netmail.ParseAddress(msg.FromAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("from address: %w", err)
	}

	to, err := netmail.ParseAddressList(msg.ToAddrs)
	if err != nil {
		return nil, nil, fmt.Errorf("to addresses: %w", err)
	}

	return from, to, nil
}

func recipients(to []*netmail.Address) []string {
	out := make([]string, len(to))
	for i, a := range to {
		out[i] = a.Address
	}

	return out
}

func mailAddresses(addrs ...*netmail.Address) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = &mail.Address{Name: a.Name, Address: a.Address}
	}

	return out
}

// composeRFC822 renders the wire form of an outbox message. go-message
// encodes the header values, so user text cannot smuggle extra headers
// into the payload.
func composeRFC822(msg *store.OutboxMessage, from *netmail.Address, to []*netmail.Address, now time.Time) (string, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", mailAddresses(from))
	h.SetAddressList("To", mailAddresses(to...))
	h.SetSubject(msg.Subject)
	h.SetMessageID(fmt.Sprintf("%v@mailvault", msg.ID))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var b bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&b, h)
	if err != nil {
		return "", err
	}

	if _, err := io.WriteString(w, msg.Body); err != nil {
		return "", err
	}

	if err := w.Close(); err != nil {
		return "", err
	}

	return b.String(), nil
}
