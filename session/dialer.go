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

package session

import (
	"context"
	"fmt"
)

func connFailed(step, addr string, err error) error {
	return fmt.Errorf("%w: %v %v: %v", ErrConnectionFailed, step, addr, err)
}

func (d *NetDialer) Dial(ctx context.Context, cfg *Config, kind Kind) (Session, error) {
	switch kind {
	case KindIMAP:
		return d.dialIMAP(ctx, cfg)
	case KindSMTP:
		return d.dialSMTP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported session kind: %v", kind)
	}
}
