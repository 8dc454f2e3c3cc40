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

package config

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func DefaultConfig() CliConfig {
	return CliConfig{
		DatabasePath: "mailvault.db",
		Keyring: KeyringConfig{
			ServiceName: "mailvault",
		},
		OAuth: OAuth2Config{
			Provider: "google",
		},
		LogLevel:           "info",
		LogFormat:          "text",
		SyncInterval:       5 * time.Minute,
		SyncMaxDuration:    10 * time.Minute,
		MaxConnsPerAccount: 3,
		IdleTimeout:        5 * time.Minute,
		DialTimeout:        30 * time.Second,
		UndoWindow:         10 * time.Second,
		MaxSendRetries:     5,
		RetryBaseDelay:     30 * time.Second,
		MaxQueueAge:        72 * time.Hour,
	}
}

func (cfg *CliConfig) Parameters() []cli.Flag {
	def := DefaultConfig()

	var flags []cli.Flag
	flags = append(flags, []cli.Flag{
		&cli.StringFlag{
			Name:        "database",
			Usage:       "path to the local mail database",
			EnvVars:     []string{"MAILVAULT_DATABASE"},
			Destination: &cfg.DatabasePath,
			Value:       def.DatabasePath,
		},
		&cli.StringFlag{
			Name:        "keyring-service",
			Usage:       "keyring service name",
			EnvVars:     []string{"MAILVAULT_KEYRING_SERVICE"},
			Destination: &cfg.Keyring.ServiceName,
			Value:       def.Keyring.ServiceName,
		},
		&cli.StringFlag{
			Name:        "keyring-file-dir",
			Usage:       "directory for the file keyring fallback",
			EnvVars:     []string{"MAILVAULT_KEYRING_FILE_DIR"},
			Destination: &cfg.Keyring.FileDir,
			Value:       def.Keyring.FileDir,
		},
		&cli.StringFlag{
			Name:        "keyring-file-password",
			Usage:       "password for the file keyring fallback",
			EnvVars:     []string{"MAILVAULT_KEYRING_FILE_PASSWORD"},
			Destination: &cfg.Keyring.FilePassword,
			Value:       def.Keyring.FilePassword,
		},
		&cli.BoolFlag{
			Name:        "keyring-force-file",
			Usage:       "skip the native keyring and use the file backend",
			EnvVars:     []string{"MAILVAULT_KEYRING_FORCE_FILE"},
			Destination: &cfg.Keyring.ForceFile,
			Value:       def.Keyring.ForceFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"MAILVAULT_LOG_LEVEL"},
			Destination: &cfg.LogLevel,
			Value:       def.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"MAILVAULT_LOG_FORMAT"},
			Destination: &cfg.LogFormat,
			Value:       def.LogFormat,
		},
		&cli.DurationFlag{
			Name:        "sync-interval",
			Usage:       "interval between mailbox sync runs",
			EnvVars:     []string{"MAILVAULT_SYNC_INTERVAL"},
			Destination: &cfg.SyncInterval,
			Value:       def.SyncInterval,
		},
		&cli.DurationFlag{
			Name:        "sync-max-duration",
			Usage:       "abort a sync run that exceeds this duration",
			EnvVars:     []string{"MAILVAULT_SYNC_MAX_DURATION"},
			Destination: &cfg.SyncMaxDuration,
			Value:       def.SyncMaxDuration,
		},
		&cli.IntFlag{
			Name:        "max-conns-per-account",
			Usage:       "maximum live sessions per account per protocol",
			EnvVars:     []string{"MAILVAULT_MAX_CONNS_PER_ACCOUNT"},
			Destination: &cfg.MaxConnsPerAccount,
			Value:       def.MaxConnsPerAccount,
		},
		&cli.DurationFlag{
			Name:        "idle-timeout",
			Usage:       "close pooled sessions idle for longer than this",
			EnvVars:     []string{"MAILVAULT_IDLE_TIMEOUT"},
			Destination: &cfg.IdleTimeout,
			Value:       def.IdleTimeout,
		},
		&cli.DurationFlag{
			Name:        "dial-timeout",
			Usage:       "session dial timeout",
			EnvVars:     []string{"MAILVAULT_DIAL_TIMEOUT"},
			Destination: &cfg.DialTimeout,
			Value:       def.DialTimeout,
		},
		&cli.DurationFlag{
			Name:        "undo-window",
			Usage:       "how long a queued message can be recalled before sending",
			EnvVars:     []string{"MAILVAULT_UNDO_WINDOW"},
			Destination: &cfg.UndoWindow,
			Value:       def.UndoWindow,
		},
		&cli.IntFlag{
			Name:        "max-send-retries",
			Usage:       "send attempts before a message is marked failed",
			EnvVars:     []string{"MAILVAULT_MAX_SEND_RETRIES"},
			Destination: &cfg.MaxSendRetries,
			Value:       def.MaxSendRetries,
		},
		&cli.DurationFlag{
			Name:        "retry-base-delay",
			Usage:       "first send retry delay, doubled per attempt",
			EnvVars:     []string{"MAILVAULT_RETRY_BASE_DELAY"},
			Destination: &cfg.RetryBaseDelay,
			Value:       def.RetryBaseDelay,
		},
		&cli.DurationFlag{
			Name:        "max-queue-age",
			Usage:       "fail queued messages older than this",
			EnvVars:     []string{"MAILVAULT_MAX_QUEUE_AGE"},
			Destination: &cfg.MaxQueueAge,
			Value:       def.MaxQueueAge,
		},
		&cli.BoolFlag{
			Name:        "allow-insecure",
			Usage:       "allow plaintext connections. for debugging only",
			EnvVars:     []string{"MAILVAULT_ALLOW_INSECURE"},
			Destination: &cfg.AllowInsecure,
			Value:       def.AllowInsecure,
			Hidden:      true,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "display protocol debug info",
			EnvVars:     []string{"MAILVAULT_DEBUG"},
			Destination: &cfg.Debug,
			Value:       def.Debug,
		},
	}...)

	flags = append(flags, cfg.OAuth.Parameters()...)
	return flags
}

// ConfigureLogging applies the log-level and log-format flags to the
// global logger.
func (cfg *CliConfig) ConfigureLogging() error {
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log.SetLevel(lvl)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	return nil
}
