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

package enrich

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vs49688/mailvault/store"
)

type fakeInference struct {
	classifyCalls int32
	embedCalls    int32

	embedInflight int32
	embedOverlap  int32

	embedDelay time.Duration

	// embedGate, if set, blocks every Embed until it is closed.
	embedGate chan struct{}
}

func (f *fakeInference) Classify(_ context.Context, _ string) (Classification, error) {
	atomic.AddInt32(&f.classifyCalls, 1)
	return Classification{Category: "personal", SpamScore: 0.05}, nil
}

func (f *fakeInference) Embed(_ context.Context, _ string) ([]float32, error) {
	if n := atomic.AddInt32(&f.embedInflight, 1); n > 1 {
		atomic.StoreInt32(&f.embedOverlap, 1)
	}
	defer atomic.AddInt32(&f.embedInflight, -1)

	if f.embedGate != nil {
		<-f.embedGate
	}

	if f.embedDelay > 0 {
		time.Sleep(f.embedDelay)
	}

	atomic.AddInt32(&f.embedCalls, 1)
	return []float32{0.25, 0.5, 0.75}, nil
}

func buildEnrichStore(t *testing.T) *store.SQLiteStore {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "enrich.db"))
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

	return st
}

func seedMessages(t *testing.T, st *store.SQLiteStore, n int) []string {
	ctx := context.Background()

	folderID, err := st.UpsertFolder(ctx, &store.Folder{AccountID: "acct-1", Name: "INBOX", UIDValidity: 1})
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	f, err := st.GetFolder(ctx, "acct-1", "INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	var ids []string
	var inserts []store.Message
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		inserts = append(inserts, store.Message{
			ID:        id,
			AccountID: "acct-1",
			UID:       f.LastSeenUID + uint32(i) + 1,
			Subject:   fmt.Sprintf("message %v", i),
			Body:      fmt.Sprintf("body of message %v", i),
			Date:      time.Now(),
		})
	}

	err = st.ApplyFolderDelta(ctx, folderID, &store.FolderDelta{
		Inserts:     inserts,
		LastSeenUID: f.LastSeenUID + uint32(n),
	})
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	return ids
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %v", what)
}

func TestPipelineClassifiesAndIndexes(t *testing.T) {
	st := buildEnrichStore(t)
	ids := seedMessages(t, st, 3)

	inf := &fakeInference{}
	p := NewPipeline(Config{Store: st, Inference: inf})
	t.Cleanup(func() { _ = p.Close() })

	p.Enqueue(ids)

	waitFor(t, "all messages indexed", func() bool {
		return p.Stats().Indexed == 3
	})

	ctx := context.Background()
	for _, id := range ids {
		msg, err := st.GetMessage(ctx, id)
		assert.NoError(t, err)
		if err != nil {
			t.FailNow()
		}
		assert.Equal(t, "personal", msg.Category)

		entry, err := st.GetSearchIndex(ctx, id)
		assert.NoError(t, err)
		if err != nil {
			t.FailNow()
		}
		assert.Equal(t, []float32{0.25, 0.5, 0.75}, entry.Vector)
	}

	assert.Equal(t, uint64(3), p.Stats().Classified)
}

func TestEmbedNeverRunsConcurrently(t *testing.T) {
	st := buildEnrichStore(t)
	ids := seedMessages(t, st, 10)

	inf := &fakeInference{embedDelay: 2 * time.Millisecond}
	p := NewPipeline(Config{Store: st, Inference: inf, SubBatchSize: 4})
	t.Cleanup(func() { _ = p.Close() })

	p.Enqueue(ids)

	waitFor(t, "all messages indexed", func() bool {
		return p.Stats().Indexed == 10
	})

	assert.Equal(t, int32(0), atomic.LoadInt32(&inf.embedOverlap))
}

func TestStaleGenerationIsDiscarded(t *testing.T) {
	st := buildEnrichStore(t)
	first := seedMessages(t, st, 2)
	second := seedMessages(t, st, 2)

	gate := make(chan struct{})
	inf := &fakeInference{embedGate: gate}
	p := NewPipeline(Config{Store: st, Inference: inf})
	t.Cleanup(func() { _ = p.Close() })

	p.Enqueue(first)

	// Let the first run reach the embed stage, then supersede it
	// while its embeds are still gated.
	waitFor(t, "first run to classify", func() bool {
		return atomic.LoadInt32(&inf.classifyCalls) >= 2
	})

	p.Enqueue(second)
	close(gate)

	waitFor(t, "second run to index", func() bool {
		return p.Stats().Indexed == uint64(len(second))
	})

	ctx := context.Background()
	for _, id := range second {
		_, err := st.GetSearchIndex(ctx, id)
		assert.NoError(t, err)
	}

	// Nothing of the superseded run may have reached the index.
	for _, id := range first {
		_, err := st.GetSearchIndex(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}

	assert.NotZero(t, p.Stats().Discarded)
}
