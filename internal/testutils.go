package internal

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
)

func BuildTestIMAPServer(t *testing.T) (*server.Server, string, *memory.Mailbox) {
	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mb, err := user.GetMailbox("INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil

	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { err = s.Serve(l) }()

	return s, l.Addr().String(), mailbox
}

// CreateTestMailbox adds a selectable mailbox to the test server's
// backend and returns it, empty.
func CreateTestMailbox(t *testing.T, s *server.Server, name string) *memory.Mailbox {
	user, err := s.Backend.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	err = user.CreateMailbox(name)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mb, err := user.GetMailbox(name)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil
	return mailbox
}

// authenticate logs the connection in against the backend the way the
// server's builtin PLAIN handler does.
func authenticate(conn server.Conn) error {
	user, err := conn.Server().Backend.Login(nil, "username", "password")
	if err != nil {
		return err
	}

	ctx := conn.Context()
	ctx.State = imap.AuthenticatedState
	ctx.User = user
	return nil
}

// EnableBearerAuth accepts OAUTHBEARER and XOAUTH2 logins carrying
// exactly wantToken for wantUser.
func EnableBearerAuth(s *server.Server, wantUser, wantToken string) {
	s.EnableAuth("OAUTHBEARER", func(conn server.Conn) sasl.Server {
		return sasl.NewOAuthBearerServer(func(opts sasl.OAuthBearerOptions) *sasl.OAuthBearerError {
			if opts.Username != wantUser || opts.Token != wantToken {
				return &sasl.OAuthBearerError{Status: "invalid_token", Schemes: "bearer"}
			}

			if err := authenticate(conn); err != nil {
				return &sasl.OAuthBearerError{Status: "invalid_request", Schemes: "bearer"}
			}
			return nil
		})
	})

	s.EnableAuth("XOAUTH2", func(conn server.Conn) sasl.Server {
		return NewXOAuth2Server(wantUser, wantToken, func() error { return authenticate(conn) })
	})
}

// NewXOAuth2Server returns a sasl.Server validating an XOAUTH2
// client-first initial response, calling onSuccess when it matches.
func NewXOAuth2Server(wantUser, wantToken string, onSuccess func() error) sasl.Server {
	if onSuccess == nil {
		onSuccess = func() error { return nil }
	}

	return &xoauth2Server{wantUser: wantUser, wantToken: wantToken, onSuccess: onSuccess}
}

// xoauth2Server is a minimal XOAUTH2 sasl.Server; it validates the
// client-first initial response.
type xoauth2Server struct {
	wantUser  string
	wantToken string
	onSuccess func() error
}

func (s *xoauth2Server) Next(response []byte) ([]byte, bool, error) {
	if response == nil {
		// Ask for the client-first initial response.
		return nil, false, nil
	}

	parts := bytes.Split(response, []byte{1})
	if len(parts) < 2 {
		return nil, false, errors.New("malformed xoauth2 response")
	}

	user := strings.TrimPrefix(string(parts[0]), "user=")
	tok := strings.TrimPrefix(string(parts[1]), "auth=Bearer ")

	if user != s.wantUser || tok != s.wantToken {
		return nil, false, errors.New("invalid xoauth2 credentials")
	}

	return nil, true, s.onSuccess()
}
