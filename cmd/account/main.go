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

package account

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vs49688/mailvault/cmd/config"
	"github.com/vs49688/mailvault/creds"
	"github.com/vs49688/mailvault/store"
)

type accountConfig struct {
	config.CliConfig

	Email          string
	IMAPHost       string
	SMTPHost       string
	SyncWindowDays int
	AccountID      string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &accountConfig{}

	addFlags := cfg.Parameters()
	addFlags = append(addFlags, []cli.Flag{
		&cli.StringFlag{
			Name:        "email",
			Usage:       "account email address",
			EnvVars:     []string{"MAILVAULT_EMAIL"},
			Destination: &cfg.Email,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "imap-url",
			Usage:       "imap server url (imap:// or imaps://)",
			EnvVars:     []string{"MAILVAULT_IMAP_URL"},
			Destination: &cfg.IMAPHost,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "smtp-url",
			Usage:       "smtp server url (smtp:// or smtps://)",
			EnvVars:     []string{"MAILVAULT_SMTP_URL"},
			Destination: &cfg.SMTPHost,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "sync-window-days",
			Usage:       "only sync mail newer than this many days, 0 for everything",
			EnvVars:     []string{"MAILVAULT_SYNC_WINDOW_DAYS"},
			Destination: &cfg.SyncWindowDays,
			Value:       30,
		},
	}...)

	removeFlags := cfg.Parameters()
	removeFlags = append(removeFlags, &cli.StringFlag{
		Name:        "account",
		Usage:       "account id to remove",
		Destination: &cfg.AccountID,
		Required:    true,
	})

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "account",
		Usage: "Manage accounts",
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Add an account",
				Flags:  addFlags,
				Action: func(context *cli.Context) error { return addAccount(context, cfg) },
			},
			{
				Name:   "list",
				Usage:  "List accounts",
				Flags:  cfg.Parameters(),
				Action: func(context *cli.Context) error { return listAccounts(context, cfg) },
			},
			{
				Name:   "remove",
				Usage:  "Remove an account and all its local data",
				Flags:  removeFlags,
				Action: func(context *cli.Context) error { return removeAccount(context, cfg) },
			},
		},
	})
	return app
}

func openStore(cfg *accountConfig) (*store.SQLiteStore, error) {
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}

	return store.NewSQLiteStore(cfg.DatabasePath)
}

func addAccount(ctx *cli.Context, cfg *accountConfig) error {
	// Validate the URLs up front so a bad scheme fails here instead of
	// at first dial.
	if _, _, err := config.ExtractAddr(cfg.IMAPHost); err != nil {
		return fmt.Errorf("imap-url: %w", err)
	}

	if _, _, err := config.ExtractAddr(cfg.SMTPHost); err != nil {
		return fmt.Errorf("smtp-url: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	acc := &store.Account{
		ID:             uuid.NewString(),
		Email:          cfg.Email,
		IMAPHost:       cfg.IMAPHost,
		SMTPHost:       cfg.SMTPHost,
		SyncWindowDays: cfg.SyncWindowDays,
		Active:         true,
	}

	if err := st.CreateAccount(ctx.Context, acc); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"account": acc.ID,
		"email":   acc.Email,
	}).Info("account_added")

	fmt.Printf("%v\n", acc.ID)
	return nil
}

func listAccounts(ctx *cli.Context, cfg *accountConfig) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	accounts, err := st.ListAccounts(ctx.Context)
	if err != nil {
		return err
	}

	for _, acc := range accounts {
		state := "active"
		if !acc.Active {
			state = "inactive"
		}

		fmt.Printf("%v\t%v\t%v\t%v\t%v\n", acc.ID, acc.Email, acc.IMAPHost, acc.SMTPHost, state)
	}

	return nil
}

// removeAccount cascades through the database, then purges the stored
// credential. The credential goes last so a failure part-way leaves
// nothing orphaned in the keyring.
func removeAccount(ctx *cli.Context, cfg *accountConfig) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.DeleteAccount(ctx.Context, cfg.AccountID); err != nil {
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

	if err := cs.Delete(cfg.AccountID); err != nil {
		return err
	}

	log.WithField("account", cfg.AccountID).Info("account_removed")
	return nil
}
