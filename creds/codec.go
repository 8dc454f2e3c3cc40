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
	"encoding/json"
	"errors"
	"time"
)

var errCorruptCredential = errors.New("corrupt credential blob")

type credentialBlob struct {
	Version      int       `json:"version"`
	Kind         string    `json:"kind"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Password     string    `json:"password,omitempty"`
}

// legacyBlob is the pre-multi-provider format, a bare username/password
// pair with no version tag.
type legacyBlob struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func encodeCredential(cred *Credential) ([]byte, error) {
	return json.Marshal(&credentialBlob{
		Version:      1,
		Kind:         cred.Kind.String(),
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		Scope:        cred.Scope,
		Password:     cred.Password,
	})
}

func decodeCredential(accountID string, data []byte) (*Credential, error) {
	var blob credentialBlob
	if err := json.Unmarshal(data, &blob); err == nil && blob.Version >= 1 {
		cred := &Credential{
			AccountID:    accountID,
			AccessToken:  blob.AccessToken,
			RefreshToken: blob.RefreshToken,
			Expiry:       blob.Expiry,
			Scope:        blob.Scope,
			Password:     blob.Password,
		}

		switch blob.Kind {
		case KindOAuth.String():
			cred.Kind = KindOAuth
		case KindAppPassword.String():
			cred.Kind = KindAppPassword
		default:
			return nil, errCorruptCredential
		}

		return cred, nil
	}

	// Not the current shape, retry as a legacy blob before declaring
	// the read corrupt.
	var legacy legacyBlob
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.Password != "" {
		return &Credential{
			AccountID: accountID,
			Kind:      KindAppPassword,
			Password:  legacy.Password,
		}, nil
	}

	return nil, errCorruptCredential
}
