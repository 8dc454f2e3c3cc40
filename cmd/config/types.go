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
	"errors"
	"time"
)

var (
	errInvalidScheme = errors.New("invalid uri scheme")
)

type KeyringConfig struct {
	ServiceName  string `json:"service_name"`
	FileDir      string `json:"file_dir"`
	FilePassword string `json:"-"`
	ForceFile    bool   `json:"force_file"`
}

type OAuth2Config struct {
	Provider     string `json:"provider"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	AuthURL      string `json:"auth_url"`
	TokenURL     string `json:"token_url"`
	Scope        string `json:"scope"`
}

type CliConfig struct {
	DatabasePath string        `json:"database_path"`
	Keyring      KeyringConfig `json:"keyring"`
	OAuth        OAuth2Config  `json:"oauth"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	SyncInterval    time.Duration `json:"sync_interval"`
	SyncMaxDuration time.Duration `json:"sync_max_duration"`

	MaxConnsPerAccount int           `json:"max_conns_per_account"`
	IdleTimeout        time.Duration `json:"idle_timeout"`
	DialTimeout        time.Duration `json:"dial_timeout"`

	UndoWindow     time.Duration `json:"undo_window"`
	MaxSendRetries int           `json:"max_send_retries"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	MaxQueueAge    time.Duration `json:"max_queue_age"`

	AllowInsecure bool `json:"allow_insecure"`
	Debug         bool `json:"debug"`
}
