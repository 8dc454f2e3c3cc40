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
	"sync"

	"github.com/vs49688/mailvault/store"
)

type Classification struct {
	Category  string
	SpamScore float64
}

// Inference abstracts the model backend. Classify is lightweight and
// may be called concurrently; Embed is heavyweight and the pipeline
// calls it strictly one at a time.
type Inference interface {
	Classify(ctx context.Context, text string) (Classification, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Store     store.Store
	Inference Inference

	// SubBatchSize is how many messages are processed between yield
	// points. Defaults to 50.
	SubBatchSize int

	// ClassifyWorkers bounds concurrent classification calls.
	// Defaults to 4.
	ClassifyWorkers int
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Classified uint64
	Indexed    uint64

	// Discarded counts writes dropped because a newer Enqueue
	// superseded their run.
	Discarded uint64
}

type indexWrite struct {
	generation uint64
	entry      *store.SearchIndexEntry
}

type Pipeline struct {
	cfg Config

	// generation distinguishes runs; a run only writes while it still
	// matches.
	generation uint64

	mtx    sync.Mutex
	cancel context.CancelFunc
	closed bool

	running sync.WaitGroup

	index       chan indexWrite
	indexerDone chan struct{}

	classified uint64
	indexed    uint64
	discarded  uint64
}
