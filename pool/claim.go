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
	"sync/atomic"
)

// Claim is a one-shot gate for a logical wait with several possible
// completions, such as a dial racing its timeout. Exactly one caller
// of Acquire wins; everyone else must discard their completion.
type Claim struct {
	claimed uint32
}

// Acquire returns true for exactly one caller.
func (c *Claim) Acquire() bool {
	return atomic.CompareAndSwapUint32(&c.claimed, 0, 1)
}

// Claimed reports whether the claim has been taken.
func (c *Claim) Claimed() bool {
	return atomic.LoadUint32(&c.claimed) != 0
}
