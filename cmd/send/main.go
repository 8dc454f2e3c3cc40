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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/mailvault/cmd/config"
	"github.com/vs49688/mailvault/creds"
	"github.com/vs49688/mailvault/outbox"
	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
	"github.com/vs49688/mailvault/token"
)

type sendConfig struct {
	config.CliConfig

	AccountID string
	To        cli.StringSlice
	Subject   string
	Body      string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &sendConfig{}

	flags := cfg.Parameters()
	flags = append(flags, []cli.Flag{
		&cli.StringFlag{
			Name:        "account",
			Usage:       "account id to send from, may be omitted with a single account",
			EnvVars:     []string{"MAILVAULT_ACCOUNT"},
			Destination: &cfg.AccountID,
		},
		&cli.StringSliceFlag{
			Name:        "to",
			Usage:       "recipient address, may be given multiple times",
			Destination: &cfg.To,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "subject",
			Usage:       "message subject",
			Destination: &cfg.Subject,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "body",
			Usage:       "message body, read from stdin when omitted",
			Destination: &cfg.Body,
		},
	}...)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "send",
		Usage:  "Queue a message for sending, with an undo window",
		Flags:  flags,
		Action: func(context *cli.Context) error { return send(context, cfg) },
	})
	return app
}

func send(cctx *cli.Context, cfg *sendConfig) error {
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	if cfg.Body == "" {
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		cfg.Body = string(body)
	}

	oauthCfg, err := cfg.OAuth.Build()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cctx.Context

	acc, err := resolveAccount(ctx, st, cfg.AccountID)
	if err != nil {
		return err
	}

	cs, err := creds.Open(creds.Config{
		ServiceName:  cfg.Keyring.ServiceName,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
		ForceFile:    cfg.Keyring.ForceFile,
	})
	if err != nil {
		return err
	}
	defer cs.Close()

	tokens := token.NewManager(token.Config{
		AccountID: acc.ID,
		OAuth:     oauthCfg,
		Creds:     cs,
		Accounts:  st,
	})

	smtpAddr, smtpTLS, err := config.ExtractAddr(acc.SMTPHost)
	if err != nil {
		return err
	}

	sessions := pool.New(pool.Config{
		Dialer: &session.NetDialer{Timeout: cfg.DialTimeout},
		Configs: staticConfig{cfg: &session.Config{
			AccountID:     acc.ID,
			Username:      acc.Email,
			SMTPAddr:      smtpAddr,
			SMTPTLS:       smtpTLS,
			AllowInsecure: cfg.AllowInsecure,
			Tokens:        tokens,
			Debug:         cfg.Debug,
		}},
		MaxPerKey:   1,
		IdleTimeout: cfg.IdleTimeout,
		DialTimeout: cfg.DialTimeout,
	})
	defer func() { _ = sessions.Close() }()

	notifications := make(chan outbox.Notification, 16)
	queue := outbox.NewQueue(outbox.Config{
		Store:          st,
		Sessions:       sessions,
		MaxSendRetries: cfg.MaxSendRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		MaxQueueAge:    cfg.MaxQueueAge,
		Notifications:  notifications,
	})
	defer func() { _ = queue.Close() }()

	msg := &store.OutboxMessage{
		AccountID: acc.ID,
		FromAddr:  acc.Email,
		ToAddrs:   strings.Join(cfg.To.Value(), ", "),
		Subject:   cfg.Subject,
		Body:      cfg.Body,
	}

	if err := queue.Submit(ctx, msg, cfg.UndoWindow); err != nil {
		return err
	}

	if cfg.UndoWindow > 0 {
		fmt.Fprintf(os.Stderr, "queued %v, sending in %v, interrupt to undo\n", msg.ID, cfg.UndoWindow)
	}

	return await(ctx, queue, msg.ID, cfg.UndoWindow, notifications)
}

// await watches the queue until the message settles. An interrupt
// inside the undo window cancels the send.
func await(ctx context.Context, queue *outbox.Queue, id string, window time.Duration, notifications <-chan outbox.Notification) error {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigchan)

	deadline := time.NewTimer(window + 30*time.Second)
	defer deadline.Stop()

	for {
		select {
		case <-sigchan:
			err := queue.Undo(ctx, id)
			if errors.Is(err, outbox.ErrNotUndoable) {
				log.WithField("message", id).Warn("undo_too_late")
				continue
			} else if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "send of %v undone\n", id)
			return nil
		case n := <-notifications:
			if n.ID != id {
				continue
			}

			switch n.State {
			case store.OutboxSent:
				fmt.Fprintf(os.Stderr, "sent %v\n", id)
				return nil
			case store.OutboxFailed:
				return fmt.Errorf("sending %v: %w", id, n.Err)
			case store.OutboxQueuedOffline:
				log.WithField("message", id).Warn("send_deferred_offline")
			}
		case <-deadline.C:
			// Still retrying offline; the daemon will pick it up.
			fmt.Fprintf(os.Stderr, "%v remains queued, a running daemon will send it\n", id)
			return nil
		}
	}
}

func resolveAccount(ctx context.Context, st store.Store, id string) (*store.Account, error) {
	if id != "" {
		return st.GetAccount(ctx, id)
	}

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	if len(accounts) != 1 {
		return nil, fmt.Errorf("have %v accounts, one must be named with --account", len(accounts))
	}

	return &accounts[0], nil
}

// staticConfig serves one pre-resolved session configuration.
type staticConfig struct {
	cfg *session.Config
}

func (c staticConfig) SessionConfig(_ context.Context, _ string) (*session.Config, error) {
	return c.cfg, nil
}
