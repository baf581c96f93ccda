// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cnnetwork/imperium/internal/account"
	"github.com/cnnetwork/imperium/internal/hash"
)

// legacyRecord is one entry of a legacy export file. Binary fields are hex.
type legacyRecord struct {
	UsernameHash string   `json:"username_hash"`
	PasswordHash string   `json:"password_hash"`
	Salt         string   `json:"salt"`
	Games        int      `json:"games"`
	Playtime     int64    `json:"playtime_seconds"`
	Rank         string   `json:"rank"`
	Achievements []string `json:"achievements"`
}

// NewLegacyCmd creates the legacy account commands.
func NewLegacyCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Manage accounts from the previous platform",
	}
	cmd.AddCommand(newLegacyImportCmd(deps))
	return cmd
}

func newLegacyImportCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import legacy accounts from a JSON export",
		Long: `Import legacy accounts from a JSON array of records with the fields
username_hash, password_hash, salt (hex), games, playtime_seconds, rank and
achievements. Records whose username hash is already known are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := readLegacyFile(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				n, err := s.store.ImportLegacy(ctx, accounts)
				if err != nil {
					return err
				}
				s.logger.Info("legacy accounts imported", "imported", n, "skipped", len(accounts)-n)
				cmd.Printf("Imported %d of %d legacy accounts\n", n, len(accounts))
				return nil
			})
		},
	}
}

func readLegacyFile(path string) ([]account.LegacyAccount, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied CLI argument
	if err != nil {
		return nil, oops.Code("LEGACY_READ_FAILED").With("path", path).Wrap(err)
	}
	var records []legacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, oops.Code("LEGACY_PARSE_FAILED").With("path", path).Wrap(err)
	}

	accounts := make([]account.LegacyAccount, 0, len(records))
	for i, rec := range records {
		acc, err := rec.toAccount()
		if err != nil {
			return nil, oops.Code("LEGACY_PARSE_FAILED").With("path", path).With("record", i).Wrap(err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (r legacyRecord) toAccount() (account.LegacyAccount, error) {
	usernameHash, err := decodeHex("username_hash", r.UsernameHash)
	if err != nil {
		return account.LegacyAccount{}, err
	}
	digest, err := decodeHex("password_hash", r.PasswordHash)
	if err != nil {
		return account.LegacyAccount{}, err
	}
	salt, err := decodeHex("salt", r.Salt)
	if err != nil {
		return account.LegacyAccount{}, err
	}
	rank := account.RankEveryone
	if r.Rank != "" {
		if rank, err = account.ParseRank(r.Rank); err != nil {
			return account.LegacyAccount{}, err
		}
	}
	if r.Games < 0 || r.Playtime < 0 {
		return account.LegacyAccount{}, oops.Code("LEGACY_PARSE_FAILED").Errorf("games and playtime must not be negative")
	}

	achievements := make([]account.Achievement, 0, len(r.Achievements))
	for _, name := range r.Achievements {
		a, err := account.ParseAchievement(name)
		if err != nil {
			return account.LegacyAccount{}, err
		}
		achievements = append(achievements, a)
	}

	return account.LegacyAccount{
		UsernameHash: usernameHash,
		Password:     hash.Hash{Digest: digest, Salt: salt, Params: hash.LegacyPasswordParams},
		Games:        r.Games,
		Playtime:     time.Duration(r.Playtime) * time.Second,
		Rank:         rank,
		Achievements: achievements,
	}, nil
}

func decodeHex(field, value string) ([]byte, error) {
	if value == "" {
		return nil, oops.Code("LEGACY_PARSE_FAILED").With("field", field).Errorf("%s is required", field)
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, oops.Code("LEGACY_PARSE_FAILED").With("field", field).Wrap(err)
	}
	return b, nil
}
