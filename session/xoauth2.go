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
	"github.com/emersion/go-sasl"
)

// Xoauth2 is the SASL mechanism name used by Gmail and Outlook.
// go-sasl has no client for it, so we carry our own.
const Xoauth2 = "XOAUTH2"

type xoauth2Client struct {
	username string
	token    string
}

func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	// Initial response: "user=<user>\x01auth=Bearer <token>\x01\x01"
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return Xoauth2, ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// A challenge is only ever a base64 JSON error blob; the client
	// must answer with an empty response to receive the final NO.
	return []byte{}, nil
}

// newSASLClient picks the bearer mechanism the server advertises,
// preferring XOAUTH2.
func newSASLClient(username, accessToken string, mechanisms map[string]bool) sasl.Client {
	if mechanisms[Xoauth2] {
		return NewXOAuth2Client(username, accessToken)
	}

	return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: username,
		Token:    accessToken,
	})
}
