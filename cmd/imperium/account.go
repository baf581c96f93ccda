// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/cnnetwork/imperium/internal/account"
)

// NewAccountCmd creates the account administration commands.
func NewAccountCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
	}
	cmd.AddCommand(newAccountRegisterCmd(deps))
	cmd.AddCommand(newAccountShowCmd(deps))
	cmd.AddCommand(newAccountRankCmd(deps))
	cmd.AddCommand(newAccountLinkDiscordCmd(deps))
	return cmd
}

func newAccountRegisterCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Register an account",
		Long: `Register an account. The password is prompted for without echo when
stdin is a terminal, otherwise it is the first line of stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				result, err := s.service.Register(ctx, args[0], password)
				if err != nil {
					return err
				}
				if err := rejected("register", result); err != nil {
					return err
				}
				cmd.Printf("Registered %s\n", args[0])
				return nil
			})
		},
	}
}

// readPassword reads a password from the terminal without echo, or the first
// line of stdin when it is not a terminal.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.PrintErr("Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("CLI_READ_PASSWORD").Wrap(err)
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("CLI_READ_PASSWORD").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("CLI_INVALID_ARGUMENT").Errorf("a password is required on stdin")
	}
	return password, nil
}

func newAccountShowCmd(deps *Deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <username>",
		Short: "Show an account and its achievements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return oops.Code("CLI_INVALID_ARGUMENT").With("output", output).Errorf("output must be json or yaml")
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				acc, err := findAccount(ctx, s.service, args[0])
				if err != nil {
					return err
				}
				achievements, err := s.service.Achievements(ctx, acc.ID)
				if err != nil {
					return err
				}
				return writeView(cmd.OutOrStdout(), output, newAccountView(acc, achievements))
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func newAccountRankCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <username> <rank>",
		Short: "Change the rank of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rank, err := account.ParseRank(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				acc, err := findAccount(ctx, s.service, args[0])
				if err != nil {
					return err
				}
				result, err := s.service.SetRank(ctx, acc.ID, rank)
				if err != nil {
					return err
				}
				if err := rejected("rank", result); err != nil {
					return err
				}
				cmd.Printf("%s is now %s\n", acc.Username, rank)
				return nil
			})
		},
	}
}

func newAccountLinkDiscordCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "link-discord <username> <discord-id>",
		Short: "Link a Discord user id to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			discord, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return oops.Code("CLI_INVALID_ARGUMENT").With("discord", args[1]).Wrap(err)
			}
			return withSession(cmd, deps, func(ctx context.Context, s *session) error {
				acc, err := findAccount(ctx, s.service, args[0])
				if err != nil {
					return err
				}
				result, err := s.service.UpdateDiscord(ctx, acc.ID, discord)
				if err != nil {
					return err
				}
				if err := rejected("link-discord", result); err != nil {
					return err
				}
				cmd.Printf("Linked %s to discord %d\n", acc.Username, discord)
				return nil
			})
		},
	}
}

func findAccount(ctx context.Context, svc *account.Service, username string) (account.Account, error) {
	acc, found, err := svc.FindByUsername(ctx, username)
	if err != nil {
		return account.Account{}, err
	}
	if !found {
		return account.Account{}, oops.Code("CLI_ACCOUNT_NOT_FOUND").With("username", username).Errorf("no account named %q", username)
	}
	return acc, nil
}

// rejected turns a non-success result into an error for the exit status.
func rejected(operation string, result account.Result) error {
	if result.OK() {
		return nil
	}
	return oops.Code("CLI_REJECTED").
		With("operation", operation).
		With("result", result.String()).
		Errorf("%s rejected: %s", operation, result)
}

type achievementView struct {
	Completed bool `json:"completed" yaml:"completed"`
	Data      any  `json:"data" yaml:"data"`
}

type accountView struct {
	ID           int64                      `json:"id" yaml:"id"`
	Username     string                     `json:"username" yaml:"username"`
	Discord      *int64                     `json:"discord,omitempty" yaml:"discord,omitempty"`
	Games        int                        `json:"games" yaml:"games"`
	Playtime     string                     `json:"playtime" yaml:"playtime"`
	Creation     time.Time                  `json:"creation" yaml:"creation"`
	Legacy       bool                       `json:"legacy" yaml:"legacy"`
	Rank         string                     `json:"rank" yaml:"rank"`
	Achievements map[string]achievementView `json:"achievements,omitempty" yaml:"achievements,omitempty"`
}

func newAccountView(acc account.Account, achievements map[account.Achievement]account.Progression) accountView {
	view := accountView{
		ID:       acc.ID,
		Username: acc.Username,
		Discord:  acc.Discord,
		Games:    acc.Games,
		Playtime: acc.Playtime.String(),
		Creation: acc.Creation,
		Legacy:   acc.Legacy,
		Rank:     acc.Rank.String(),
	}
	if len(achievements) > 0 {
		view.Achievements = make(map[string]achievementView, len(achievements))
		for a, p := range achievements {
			var data any
			if err := json.Unmarshal(p.Data, &data); err != nil {
				data = string(p.Data)
			}
			view.Achievements[string(a)] = achievementView{Completed: p.Completed, Data: data}
		}
	}
	return view
}

func writeView(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return oops.Code("CLI_OUTPUT_FAILED").Wrap(err)
		}
		return oops.Code("CLI_OUTPUT_FAILED").Wrap(enc.Close())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("CLI_OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
