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

package run

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/vs49688/mailvault/enrich"
)

// keywordInference is a cheap local model: keyword-scored categories
// and a hashed bag-of-words embedding. Good enough for search and
// filtering until a real backend is plugged in.
type keywordInference struct {
	dims int
}

func newKeywordInference() *keywordInference {
	return &keywordInference{dims: 64}
}

var categoryKeywords = map[string][]string{
	"finance":    {"invoice", "payment", "receipt", "statement", "billing"},
	"travel":     {"flight", "itinerary", "booking", "reservation", "check-in"},
	"promotions": {"sale", "discount", "offer", "unsubscribe", "deal"},
	"social":     {"mentioned", "commented", "followed", "friend", "liked"},
}

var spamKeywords = []string{"winner", "prize", "lottery", "urgent", "wire transfer"}

func (k *keywordInference) Classify(_ context.Context, text string) (enrich.Classification, error) {
	lower := strings.ToLower(text)

	best := "personal"
	bestScore := 0
	for cat, words := range categoryKeywords {
		score := 0
		for _, w := range words {
			score += strings.Count(lower, w)
		}

		if score > bestScore {
			best = cat
			bestScore = score
		}
	}

	spam := 0
	for _, w := range spamKeywords {
		spam += strings.Count(lower, w)
	}

	score := float64(spam) / 10.0
	if score > 1.0 {
		score = 1.0
	}

	return enrich.Classification{Category: best, SpamScore: score}, nil
}

func (k *keywordInference) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, k.dims)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(k.dims)] += 1.0
	}

	// L2-normalize so dot products are comparable across lengths.
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}
