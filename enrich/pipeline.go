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
	"runtime"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vs49688/mailvault/store"
)

func NewPipeline(cfg Config) *Pipeline {
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = 50
	}

	if cfg.ClassifyWorkers <= 0 {
		cfg.ClassifyWorkers = 4
	}

	p := &Pipeline{
		cfg:         cfg,
		index:       make(chan indexWrite, cfg.SubBatchSize),
		indexerDone: make(chan struct{}),
	}

	go p.indexer()
	return p
}

// Publish lets the pipeline sit directly behind the sync engine.
func (p *Pipeline) Publish(_ string, messageIDs []string) {
	p.Enqueue(messageIDs)
}

// Enqueue supersedes any running batch: the old run is cancelled, the
// generation advances, and a new run starts. Results belonging to a
// superseded generation are discarded, never written.
func (p *Pipeline) Enqueue(messageIDs []string) {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return
	}

	if p.cancel != nil {
		p.cancel()
	}

	gen := atomic.AddUint64(&p.generation, 1)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.running.Add(1)
	p.mtx.Unlock()

	log.WithFields(log.Fields{
		"generation": gen,
		"count":      len(messageIDs),
	}).Trace("enrich_enqueued")

	go p.run(ctx, gen, messageIDs)
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Classified: atomic.LoadUint64(&p.classified),
		Indexed:    atomic.LoadUint64(&p.indexed),
		Discarded:  atomic.LoadUint64(&p.discarded),
	}
}

func (p *Pipeline) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true

	if p.cancel != nil {
		p.cancel()
	}
	p.mtx.Unlock()

	p.running.Wait()
	close(p.index)
	<-p.indexerDone
	return nil
}

// current reports whether gen is still the live generation.
func (p *Pipeline) current(gen uint64) bool {
	return atomic.LoadUint64(&p.generation) == gen
}

func (p *Pipeline) run(ctx context.Context, gen uint64, messageIDs []string) {
	defer p.running.Done()

	for start := 0; start < len(messageIDs); start += p.cfg.SubBatchSize {
		if ctx.Err() != nil || !p.current(gen) {
			atomic.AddUint64(&p.discarded, uint64(len(messageIDs)-start))
			return
		}

		end := start + p.cfg.SubBatchSize
		if end > len(messageIDs) {
			end = len(messageIDs)
		}

		if err := p.processSubBatch(ctx, gen, messageIDs[start:end]); err != nil {
			log.WithError(err).WithField("generation", gen).Warn("enrich_sub_batch_failed")
			return
		}

		// Yield between sub-batches so a long batch never
		// monopolises the scheduler.
		runtime.Gosched()
	}

	log.WithFields(log.Fields{
		"generation": gen,
		"count":      len(messageIDs),
	}).Trace("enrich_batch_complete")
}

func (p *Pipeline) processSubBatch(ctx context.Context, gen uint64, ids []string) error {
	msgs := make([]*store.Message, len(ids))

	// Lightweight classification runs with bounded concurrency.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ClassifyWorkers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			msg, err := p.cfg.Store.GetMessage(gctx, id)
			if err != nil {
				return err
			}
			msgs[i] = msg

			c, err := p.cfg.Inference.Classify(gctx, msg.Subject+"\n"+msg.Body)
			if err != nil {
				return err
			}

			if !p.current(gen) {
				atomic.AddUint64(&p.discarded, 1)
				return nil
			}

			if err := p.cfg.Store.SetMessageClassification(gctx, id, c.Category, c.SpamScore); err != nil {
				return err
			}

			atomic.AddUint64(&p.classified, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Heavy generative work runs strictly one at a time; the
	// inference engine cannot serve concurrent heavy requests.
	for _, msg := range msgs {
		if msg == nil {
			continue
		}

		if ctx.Err() != nil || !p.current(gen) {
			atomic.AddUint64(&p.discarded, 1)
			continue
		}

		vector, err := p.cfg.Inference.Embed(ctx, msg.Body)
		if err != nil {
			return err
		}

		p.index <- indexWrite{
			generation: gen,
			entry: &store.SearchIndexEntry{
				MessageID: msg.ID,
				Summary:   msg.Subject,
				Vector:    vector,
				UpdatedAt: time.Now().UTC(),
			},
		}
	}

	return nil
}

// indexer is the single owner of search-index writes; no two runs can
// race on the same record. Each write re-checks its generation right
// before touching the store.
func (p *Pipeline) indexer() {
	defer close(p.indexerDone)

	for w := range p.index {
		if !p.current(w.generation) {
			atomic.AddUint64(&p.discarded, 1)
			continue
		}

		if err := p.cfg.Store.UpsertSearchIndex(context.Background(), w.entry); err != nil {
			log.WithError(err).WithField("message", w.entry.MessageID).Warn("enrich_index_write_failed")
			continue
		}

		atomic.AddUint64(&p.indexed, 1)
	}
}
