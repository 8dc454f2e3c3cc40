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

package send

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vs49688/mailvault/store"
)

func TestResolveAccount(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "mailvault.db"))
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()

	// No accounts at all: nothing to default to.
	_, err = resolveAccount(ctx, st, "")
	assert.Error(t, err)

	err = st.CreateAccount(ctx, &store.Account{ID: "acct-1", Email: "one@example.com", Active: true})
	assert.NoError(t, err)

	// A single account is the implicit default.
	acc, err := resolveAccount(ctx, st, "")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, "acct-1", acc.ID)

	err = st.CreateAccount(ctx, &store.Account{ID: "acct-2", Email: "two@example.com", Active: true})
	assert.NoError(t, err)

	// Two accounts: the caller has to pick.
	_, err = resolveAccount(ctx, st, "")
	assert.Error(t, err)

	acc, err = resolveAccount(ctx, st, "acct-2")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	assert.Equal(t, "acct-2", acc.ID)

	_, err = resolveAccount(ctx, st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
