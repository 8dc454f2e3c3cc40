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
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vs49688/mailvault/cmd/config"
	"github.com/vs49688/mailvault/creds"
	"github.com/vs49688/mailvault/engine"
	"github.com/vs49688/mailvault/enrich"
	"github.com/vs49688/mailvault/outbox"
	"github.com/vs49688/mailvault/pool"
	"github.com/vs49688/mailvault/session"
	"github.com/vs49688/mailvault/store"
	"github.com/vs49688/mailvault/token"
)

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.CliConfig{}
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Run the sync and send daemon",
		Flags:  cfg.Parameters(),
		Action: func(context *cli.Context) error { return run(context, cfg) },
	})
	return app
}

func run(_ *cli.Context, cfg *config.CliConfig) error {
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"database":              cfg.DatabasePath,
		"keyring_service":       cfg.Keyring.ServiceName,
		"keyring_force_file":    cfg.Keyring.ForceFile,
		"oauth_provider":        cfg.OAuth.Provider,
		"log_level":             cfg.LogLevel,
		"log_format":            cfg.LogFormat,
		"sync_interval":         cfg.SyncInterval,
		"sync_max_duration":     cfg.SyncMaxDuration,
		"max_conns_per_account": cfg.MaxConnsPerAccount,
		"idle_timeout":          cfg.IdleTimeout,
		"dial_timeout":          cfg.DialTimeout,
		"undo_window":           cfg.UndoWindow,
		"max_send_retries":      cfg.MaxSendRetries,
		"retry_base_delay":      cfg.RetryBaseDelay,
		"max_queue_age":         cfg.MaxQueueAge,
	}).Info("starting")

	oauthCfg, err := cfg.OAuth.Build()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

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

	reauth := make(chan token.ReauthRequired, 16)
	tokens := newTokenRegistry(oauthCfg, cs, st, reauth)

	sessions := pool.New(pool.Config{
		Dialer: &session.NetDialer{Timeout: cfg.DialTimeout},
		Configs: &accountConfigs{
			store:         st,
			tokens:        tokens,
			allowInsecure: cfg.AllowInsecure,
			debug:         cfg.Debug,
		},
		MaxPerKey:   cfg.MaxConnsPerAccount,
		IdleTimeout: cfg.IdleTimeout,
		DialTimeout: cfg.DialTimeout,
	})
	defer func() { _ = sessions.Close() }()

	pipeline := enrich.NewPipeline(enrich.Config{
		Store:     st,
		Inference: newKeywordInference(),
	})
	defer func() { _ = pipeline.Close() }()

	eng := engine.New(engine.Config{
		Store:       st,
		Sessions:    sessions,
		Tokens:      tokens,
		Publisher:   pipeline,
		MaxDuration: cfg.SyncMaxDuration,
	})

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if recovered, err := queue.Recover(ctx); err != nil {
		return err
	} else if len(recovered) > 0 {
		log.WithField("count", len(recovered)).Warn("outbox_drafts_recovered")
	}

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)

		t := time.NewTicker(cfg.SyncInterval)
		defer t.Stop()

		syncAll(ctx, eng, st)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				syncAll(ctx, eng, st)
			}
		}
	}()

	sigchan := make(chan os.Signal, 10)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	sigcount := 0
	for {
		select {
		case sig := <-sigchan:
			log.WithFields(log.Fields{"signal": sig, "count": sigcount}).Trace("caught_signal")

			sigcount += 1
			if sigcount > 1 {
				log.WithFields(log.Fields{"signal": sig}).Warn("received_interrupt_force_exit")
				os.Exit(1)
			}
			log.WithFields(log.Fields{"signal": sig}).Info("received_interrupt")

			cancel()
		case r := <-reauth:
			log.WithError(r.Err).WithField("account", r.AccountID).Error("account_reauth_required")
		case n := <-notifications:
			entry := log.WithFields(log.Fields{"message": n.ID, "state": n.State})
			if n.Err != nil {
				entry.WithError(n.Err).Warn("outbox_notification")
			} else {
				entry.Trace("outbox_notification")
			}
		case <-syncDone:
			log.Info("terminated")
			return nil
		}
	}
}

// syncAll runs one sync pass over every account. Accounts run in
// parallel; a failure in one never stops the others.
func syncAll(ctx context.Context, eng *engine.Engine, st store.Store) {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		log.WithError(err).Error("account_list_failed")
		return
	}

	var g errgroup.Group
	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			res, err := eng.SyncAccount(ctx, acc.ID)
			if err != nil {
				log.WithError(err).WithField("account", acc.ID).Error("sync_failed")
				return nil
			}

			if res.Skipped || res.Paused {
				return nil
			}

			log.WithFields(log.Fields{
				"account":  acc.ID,
				"folders":  res.Folders,
				"inserted": res.Inserted,
				"updated":  res.Updated,
				"deleted":  res.Deleted,
				"duration": res.Duration,
			}).Info("sync_pass_complete")
			return nil
		})
	}

	_ = g.Wait()
}
