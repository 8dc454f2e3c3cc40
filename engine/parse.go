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

package engine

import (
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/vs49688/mailvault/store"
)

// buildMessage converts a fetched IMAP message into a store record.
// The envelope supplies the metadata; the body literal, if fetched,
// supplies the text and attachment inventory.
func buildMessage(accountID string, folderID int64, msg *imap.Message, section *imap.BodySectionName) store.Message {
	rec := store.Message{
		ID:        uuid.NewString(),
		AccountID: accountID,
		FolderID:  folderID,
		UID:       msg.Uid,
		Flags:     joinFlags(msg.Flags),
	}

	if env := msg.Envelope; env != nil {
		rec.Subject = env.Subject
		rec.MessageID = env.MessageId
		rec.Date = env.Date

		if len(env.From) > 0 {
			rec.FromAddr = env.From[0].Address()
		}

		addrs := make([]string, 0, len(env.To))
		for _, a := range env.To {
			addrs = append(addrs, a.Address())
		}
		rec.ToAddrs = strings.Join(addrs, ", ")
	}

	if section != nil {
		if body := msg.GetBody(section); body != nil {
			rec.Body, rec.Attachments = parseBody(body)
		}
	}

	return rec
}

// parseBody extracts the text/plain part and attachment metadata from
// a raw RFC 2822 body. An unparseable body is stored as-is.
func parseBody(r io.Reader) (string, []store.Attachment) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", nil
	}

	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return string(raw), nil
	}
	defer func() { _ = mr.Close() }()

	var text string
	var attachments []store.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			if text == "" && strings.HasPrefix(contentType, "text/plain") {
				text = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			attachments = append(attachments, store.Attachment{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(body)),
			})
		}
	}

	return text, attachments
}

func joinFlags(flags []string) string {
	return strings.Join(flags, " ")
}

// subjectKey normalises a subject for threading: reply and forward
// prefixes stripped, case folded.
func subjectKey(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))

	for {
		stripped := s
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			stripped = strings.TrimSpace(strings.TrimPrefix(stripped, prefix))
		}

		if stripped == s {
			break
		}
		s = stripped
	}

	if s == "" {
		return "(no subject)"
	}

	return s
}
