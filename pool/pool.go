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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vs49688/mailvault/session"
)

func New(cfg Config) *Pool {
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = 3
	}

	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	p := &Pool{
		cfg:       cfg,
		buckets:   map[key]*bucket{},
		sweepQuit: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go p.sweeper()
	return p
}

func (p *Pool) bucketLocked(k key) *bucket {
	b, ok := p.buckets[k]
	if !ok {
		b = &bucket{}
		p.buckets[k] = b
	}

	return b
}

// wakeLocked resumes the oldest live waiter with s, which may be nil
// to mean "a slot freed, retry the dial". Waiters whose claim is
// already taken timed out and are dropped.
func (p *Pool) wakeLocked(b *bucket, s session.Session) bool {
	for len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]

		if w.claim.Acquire() {
			w.ch <- s
			return true
		}
	}

	return false
}

func (p *Pool) removeWaiter(k key, w *waiter) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	b := p.bucketLocked(k)
	for i, other := range b.waiters {
		if other == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// dropSlot gives up a live slot that was reserved for a dial that
// never produced a session.
func (p *Pool) dropSlot(k key) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	b := p.bucketLocked(k)
	b.live--
	p.wakeLocked(b, nil)
}

func (p *Pool) Acquire(ctx context.Context, accountID string, kind session.Kind) (session.Session, error) {
	k := key{accountID: accountID, kind: kind}

	for {
		p.mtx.Lock()
		if p.closed {
			p.mtx.Unlock()
			return nil, ErrClosed
		}

		b := p.bucketLocked(k)

		// Most recently used first; it is the least likely to have
		// been dropped by the peer.
		var stale []session.Session
		for len(b.idle) > 0 {
			s := b.idle[len(b.idle)-1]
			b.idle = b.idle[:len(b.idle)-1]

			if s.Healthy() {
				p.mtx.Unlock()
				closeAll(stale)
				s.Touch()

				log.WithFields(log.Fields{
					"account": accountID,
					"kind":    kind.String(),
				}).Trace("pool_reuse")
				return s, nil
			}

			b.live--
			p.wakeLocked(b, nil)
			stale = append(stale, s)
		}

		if b.live < p.cfg.MaxPerKey {
			b.live++
			p.mtx.Unlock()
			closeAll(stale)

			s, err := p.dial(ctx, k)
			if err != nil {
				p.dropSlot(k)
				return nil, err
			}

			return s, nil
		}

		w := &waiter{claim: &Claim{}, ch: make(chan session.Session, 1)}
		b.waiters = append(b.waiters, w)
		p.mtx.Unlock()
		closeAll(stale)

		select {
		case s := <-w.ch:
			if s == nil {
				// A slot freed up; go around again.
				continue
			}

			s.Touch()
			return s, nil
		case <-ctx.Done():
			if w.claim.Acquire() {
				p.removeWaiter(k, w)
				return nil, ctx.Err()
			}

			// Lost the race to a handoff; the session is already in
			// the channel. Put it back for the next caller.
			if s := <-w.ch; s != nil {
				p.Release(s)
			}
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) dial(ctx context.Context, k key) (session.Session, error) {
	cfg, err := p.cfg.Configs.SessionConfig(ctx, k.accountID)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()

	type result struct {
		s   session.Session
		err error
	}

	claim := &Claim{}
	ch := make(chan result, 1)

	go func() {
		s, err := p.cfg.Dialer.Dial(dialCtx, cfg, k.kind)
		if !claim.Acquire() {
			// Timed out underneath us; nobody is listening.
			if s != nil {
				_ = s.Close()
			}
			return
		}

		ch <- result{s: s, err: err}
	}()

	select {
	case r := <-ch:
		return r.s, r.err
	case <-dialCtx.Done():
		if claim.Acquire() {
			return nil, fmt.Errorf("%w: %v", ErrDialTimeout, dialCtx.Err())
		}

		// The dial completed in the same instant; its result is in
		// the channel.
		r := <-ch
		return r.s, r.err
	}
}

// Release returns a borrowed session to the idle set, or hands it
// directly to a waiter. An unhealthy session is invalidated instead.
func (p *Pool) Release(s session.Session) {
	if s == nil {
		return
	}

	if !s.Healthy() {
		p.Invalidate(s)
		return
	}

	k := key{accountID: s.AccountID(), kind: s.Kind()}

	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		_ = s.Close()
		return
	}

	b := p.bucketLocked(k)
	if p.wakeLocked(b, s) {
		p.mtx.Unlock()
		return
	}

	s.Touch()
	b.idle = append(b.idle, s)
	p.mtx.Unlock()
}

// Invalidate discards a borrowed session, freeing its slot.
func (p *Pool) Invalidate(s session.Session) {
	if s == nil {
		return
	}

	k := key{accountID: s.AccountID(), kind: s.Kind()}

	p.mtx.Lock()
	b := p.bucketLocked(k)
	b.live--
	p.wakeLocked(b, nil)
	p.mtx.Unlock()

	_ = s.Close()

	log.WithFields(log.Fields{
		"account": k.accountID,
		"kind":    k.kind.String(),
	}).Trace("pool_invalidate")
}

func (p *Pool) sweeper() {
	defer close(p.sweepDone)

	t := time.NewTicker(p.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.sweep(time.Now())
		case <-p.sweepQuit:
			return
		}
	}
}

func (p *Pool) sweep(now time.Time) {
	var victims []session.Session

	p.mtx.Lock()
	for _, b := range p.buckets {
		kept := b.idle[:0]
		for _, s := range b.idle {
			if s.Healthy() && now.Sub(s.LastUsed()) < p.cfg.IdleTimeout {
				kept = append(kept, s)
				continue
			}

			b.live--
			p.wakeLocked(b, nil)
			victims = append(victims, s)
		}
		b.idle = kept
	}
	p.mtx.Unlock()

	closeAll(victims)

	if len(victims) > 0 {
		log.WithFields(log.Fields{"count": len(victims)}).Trace("pool_sweep")
	}
}

func (p *Pool) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true

	var victims []session.Session
	for _, b := range p.buckets {
		victims = append(victims, b.idle...)
		b.live -= len(b.idle)
		b.idle = nil

		for _, w := range b.waiters {
			if w.claim.Acquire() {
				w.ch <- nil
			}
		}
		b.waiters = nil
	}
	p.mtx.Unlock()

	close(p.sweepQuit)
	<-p.sweepDone

	closeAll(victims)
	return nil
}

func closeAll(sessions []session.Session) {
	for _, s := range sessions {
		_ = s.Close()
	}
}
