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

package creds

import (
	"errors"
	"sync/atomic"

	"github.com/99designs/keyring"
	log "github.com/sirupsen/logrus"
)

var errStoreClosed = errors.New("credential store closed")

const probeKey = "mailvault.backend.probe"

var nativeBackends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.SecretServiceBackend,
	keyring.WinCredBackend,
	keyring.PassBackend,
}

func openRing(cfg *Config, backends []keyring.BackendType) (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
		KeychainTrustApplication: true,
	})
}

// probeRing performs one write/read/delete cycle to verify the backend
// is actually usable, not merely present. A sandboxed process without
// the right entitlement typically only fails at this point.
func probeRing(ring keyring.Keyring) error {
	if err := ring.Set(keyring.Item{Key: probeKey, Data: []byte{1}}); err != nil {
		return err
	}

	if _, err := ring.Get(probeKey); err != nil {
		return err
	}

	return ring.Remove(probeKey)
}

// selectBackend runs once per process, at Open. The result is cached on
// the store for its lifetime; probes are too expensive to repeat.
func selectBackend(cfg *Config) (keyring.Keyring, string, error) {
	if !cfg.ForceFile {
		ring, err := openRing(cfg, nativeBackends)
		if err == nil {
			if err = probeRing(ring); err == nil {
				return ring, "native", nil
			}
		}

		log.WithError(err).Warn("creds_native_backend_unusable")
	}

	ring, err := openRing(cfg, []keyring.BackendType{keyring.FileBackend})
	if err != nil {
		return nil, "file", err
	}

	return ring, "file", nil
}

// Open selects a keyring backend (probing the native one exactly once)
// and starts the serving goroutine.
func Open(cfg Config) (*KeyringStore, error) {
	ring, backend, err := selectBackend(&cfg)
	if err != nil {
		return nil, &StoreError{Op: OpStore, Err: err}
	}

	log.WithField("backend", backend).Info("creds_backend_selected")

	s := &KeyringStore{
		ring:     ring,
		backend:  backend,
		incoming: make(chan interface{}),
		wantQuit: make(chan struct{}),
		hasQuit:  make(chan struct{}),
		shutdown: 0,
	}

	go s.run()
	return s, nil
}

func (s *KeyringStore) isShutdown() bool {
	return atomic.LoadInt32(&s.shutdown) != 0
}

func (s *KeyringStore) Put(accountID string, cred *Credential) error {
	if s.isShutdown() {
		return &StoreError{Op: OpStore, Err: errStoreClosed}
	}

	r := make(chan error)
	s.incoming <- putRequest{r: r, accountID: accountID, cred: cred}
	return <-r
}

func (s *KeyringStore) Get(accountID string) (*Credential, error) {
	if s.isShutdown() {
		return nil, &StoreError{Op: OpRetrieve, Err: errStoreClosed}
	}

	r := make(chan getResponse)
	s.incoming <- getRequest{r: r, accountID: accountID}
	gr := <-r
	return gr.cred, gr.err
}

func (s *KeyringStore) Delete(accountID string) error {
	if s.isShutdown() {
		return &StoreError{Op: OpDelete, Err: errStoreClosed}
	}

	r := make(chan error)
	s.incoming <- deleteRequest{r: r, accountID: accountID}
	return <-r
}

func (s *KeyringStore) Close() {
	if s.isShutdown() {
		return
	}

	close(s.wantQuit)
	<-s.hasQuit
}

func (s *KeyringStore) run() {
	for {
		select {
		case <-s.wantQuit:
			goto done
		case _req := <-s.incoming:
			switch req := _req.(type) {
			case putRequest:
				req.r <- s.doPut(req.accountID, req.cred)
			case getRequest:
				cred, err := s.doGet(req.accountID)
				req.r <- getResponse{cred: cred, err: err}
			case deleteRequest:
				req.r <- s.doDelete(req.accountID)
			}
		}
	}
done:
	atomic.StoreInt32(&s.shutdown, 1)
	s.drain()
	close(s.hasQuit)
}

func (s *KeyringStore) drain() {
	for {
		select {
		case _req := <-s.incoming:
			switch req := _req.(type) {
			case putRequest:
				req.r <- &StoreError{Op: OpStore, Err: errStoreClosed}
			case getRequest:
				req.r <- getResponse{err: &StoreError{Op: OpRetrieve, Err: errStoreClosed}}
			case deleteRequest:
				req.r <- &StoreError{Op: OpDelete, Err: errStoreClosed}
			}
		default:
			close(s.incoming)
			return
		}
	}
}

// doPut replaces the stored credential via delete-then-add so a stale
// partial write can never be read back. If the add fails the previous
// value is already gone; callers must treat failure as "absent".
func (s *KeyringStore) doPut(accountID string, cred *Credential) error {
	data, err := encodeCredential(cred)
	if err != nil {
		return &StoreError{Op: OpStore, Err: err}
	}

	if err := s.ring.Remove(accountID); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return &StoreError{Op: OpDelete, Err: err}
	}

	if err := s.ring.Set(keyring.Item{Key: accountID, Data: data}); err != nil {
		log.WithError(err).WithField("account", accountID).Error("creds_store_failed")
		return &StoreError{Op: OpStore, Err: err}
	}

	log.WithFields(log.Fields{
		"account": accountID,
		"kind":    cred.Kind,
	}).Trace("creds_stored")
	return nil
}

func (s *KeyringStore) doGet(accountID string) (*Credential, error) {
	item, err := s.ring.Get(accountID)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, &StoreError{Op: OpRetrieve, Err: err}
	}

	cred, err := decodeCredential(accountID, item.Data)
	if err != nil {
		return nil, &StoreError{Op: OpRetrieve, Err: err}
	}

	return cred, nil
}

func (s *KeyringStore) doDelete(accountID string) error {
	if err := s.ring.Remove(accountID); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return &StoreError{Op: OpDelete, Err: err}
	}

	return nil
}
