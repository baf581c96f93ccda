// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cnnetwork/imperium/internal/hash"
)

var tracer = otel.Tracer("imperium/account")

// Operation names reported to the Recorder.
const (
	OpRegister                  = "register"
	OpLogin                     = "login"
	OpMigrate                   = "migrate"
	OpChangePassword            = "change_password"
	OpRefresh                   = "refresh"
	OpLogout                    = "logout"
	OpSetAchievementCompletion  = "set_achievement_completion"
	OpSetAchievementProgression = "set_achievement_progression"
	OpSetRank                   = "set_rank"
	OpUpdateDiscord             = "update_discord"
)

// resultError is recorded for operations that failed with an error.
const resultError = "error"

// Testing mode credentials.
const (
	TestUsername = "test"
	TestPassword = "test"
)

// dummyLegacyPassword is verified when no legacy account matches, so an
// unknown legacy name costs the same PBKDF2 derivation as a wrong password.
var dummyLegacyPassword = hash.Hash{
	Digest: make([]byte, 32),
	Salt:   make([]byte, 16),
	Params: hash.LegacyPasswordParams,
}

// Service is the account lifecycle service. It is the only writer of account
// state; every operation is a single Store transaction and events are
// published only after that transaction committed.
type Service struct {
	store    Store
	hasher   Hasher
	policy   Policy
	notifier Notifier
	sessions *SessionManager

	passwordParams hash.Params
	now            func() time.Time
	logger         *slog.Logger
	recorder       Recorder
}

// NewService creates a Service. All dependencies are required; pass NoPolicy
// to accept every username and password.
func NewService(store Store, hasher Hasher, policy Policy, notifier Notifier, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("store is required")
	case hasher == nil:
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("hasher is required")
	case policy == nil:
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("policy is required")
	case notifier == nil:
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("notifier is required")
	}

	o := applyOptions(opts)
	if o.passwordParams == nil || o.passwordParams.Algorithm() != hash.AlgorithmArgon2 {
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("password params must be argon2")
	}
	if o.sessionParams == nil || o.sessionParams.Algorithm() != hash.AlgorithmArgon2 {
		return nil, oops.Code("ACCOUNT_INVALID_DEPENDENCY").Errorf("session params must be argon2")
	}

	sessions, err := NewSessionManager(hasher, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:          store,
		hasher:         hasher,
		policy:         policy,
		notifier:       notifier,
		sessions:       sessions,
		passwordParams: o.passwordParams,
		now:            o.clock,
		logger:         o.logger,
		recorder:       o.recorder,
	}, nil
}

// Sessions returns the session manager used by the service.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Register creates an account. Checks run in order: username taken, username
// reserved by a legacy account, password policy, username policy. A username
// the store cannot hold is InvalidUsername before any of them.
func (s *Service) Register(ctx context.Context, username, password string) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpRegister)
	if !storable(username) {
		return s.finish(span, OpRegister, InvalidUsername(storageRequirements(username)), nil)
	}
	pseudonym, err := s.pseudonym(ctx, username)
	if err != nil {
		return s.finish(span, OpRegister, Result{}, oops.Code("ACCOUNT_REGISTER_FAILED").Wrap(err))
	}

	var result Result
	err = s.store.InTx(ctx, func(tx Tx) error {
		taken, err := tx.UsernameExists(ctx, username)
		if err != nil {
			return oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "check username").Wrap(err)
		}
		if taken {
			result = AlreadyRegistered
			return nil
		}

		reserved, err := tx.LegacyExists(ctx, pseudonym)
		if err != nil {
			return oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "check legacy username").Wrap(err)
		}
		if reserved {
			result = InvalidUsername([]Requirement{ReservedUsername})
			return nil
		}

		if missing := s.policy.MissingPasswordRequirements(password); len(missing) > 0 {
			result = InvalidPassword(missing)
			return nil
		}
		if missing := s.usernameRequirements(username); len(missing) > 0 {
			result = InvalidUsername(missing)
			return nil
		}

		pw, err := s.hasher.Create(ctx, []byte(password), s.passwordParams)
		if err != nil {
			return oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
		}
		if _, err := tx.InsertAccount(ctx, NewAccount{Username: username, Password: pw, Creation: s.now()}); err != nil {
			return oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "insert account").Wrap(err)
		}
		result = Success
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return s.finish(span, OpRegister, AlreadyRegistered, nil)
	}
	if err == nil && result.OK() {
		s.logger.InfoContext(ctx, "account registered", "username", username)
	}
	return s.finish(span, OpRegister, result, err)
}

// Login verifies the password of username and opens a session for identity.
// NotFound means no such username; WrongPassword is only reported for an
// existing account.
func (s *Service) Login(ctx context.Context, username, password string, identity Identity) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpLogin)
	if !storable(username) {
		return s.finish(span, OpLogin, NotFound, nil)
	}
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return s.finish(span, OpLogin, Result{}, oops.Code("ACCOUNT_LOGIN_FAILED").Wrap(err))
	}

	var (
		result    Result
		accountID int64
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		creds, err := tx.CredentialsByUsername(ctx, username)
		if errors.Is(err, ErrNotFound) {
			result = NotFound
			return nil
		}
		if err != nil {
			return oops.Code("ACCOUNT_LOGIN_FAILED").With("operation", "get credentials").Wrap(err)
		}

		ok, err := s.hasher.Verify(ctx, []byte(password), creds.Password)
		if err != nil {
			return oops.Code("ACCOUNT_LOGIN_FAILED").With("operation", "verify password").Wrap(err)
		}
		if !ok {
			result = WrongPassword
			return nil
		}

		accountID = creds.AccountID
		result, err = s.sessions.Create(ctx, tx, creds.AccountID, fingerprint)
		return err
	})
	if errors.Is(err, ErrConflict) {
		return s.finish(span, OpLogin, AlreadyLogged, nil)
	}
	if err == nil && result.OK() {
		s.logger.DebugContext(ctx, "login", "account_id", accountID, "identity", identity)
	}
	return s.finish(span, OpLogin, result, err)
}

// Migrate turns a legacy account into a regular one named newUsername. A
// missing legacy account and a wrong password are both NotFound and both pay
// for one password derivation. newUsername may not be reserved by another
// legacy account. Everything happens in one transaction: on any failure the
// legacy account survives.
func (s *Service) Migrate(ctx context.Context, oldUsername, newUsername, password string) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpMigrate)
	pseudonym, err := s.pseudonym(ctx, oldUsername)
	if err != nil {
		return s.finish(span, OpMigrate, Result{}, oops.Code("ACCOUNT_MIGRATE_FAILED").Wrap(err))
	}
	newPseudonym, err := s.pseudonym(ctx, newUsername)
	if err != nil {
		return s.finish(span, OpMigrate, Result{}, oops.Code("ACCOUNT_MIGRATE_FAILED").Wrap(err))
	}

	var (
		result    Result
		accountID int64
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		legacy, err := tx.LegacyByUsernameHash(ctx, pseudonym)
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(ctx, []byte(password), dummyLegacyPassword)
			result = NotFound
			return nil
		}
		if err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "get legacy account").Wrap(err)
		}

		ok, err := s.hasher.Verify(ctx, []byte(password), legacy.Password)
		if err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "verify legacy password").Wrap(err)
		}
		if !ok {
			result = NotFound
			return nil
		}

		if !storable(newUsername) {
			result = InvalidUsername(storageRequirements(newUsername))
			return nil
		}
		taken, err := tx.UsernameExists(ctx, newUsername)
		if err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "check username").Wrap(err)
		}
		if taken {
			result = AlreadyRegistered
			return nil
		}
		if !bytes.Equal(newPseudonym, pseudonym) {
			reserved, err := tx.LegacyExists(ctx, newPseudonym)
			if err != nil {
				return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "check legacy username").Wrap(err)
			}
			if reserved {
				result = InvalidUsername([]Requirement{ReservedUsername})
				return nil
			}
		}
		if missing := s.usernameRequirements(newUsername); len(missing) > 0 {
			result = InvalidUsername(missing)
			return nil
		}

		pw, err := s.hasher.Create(ctx, []byte(password), s.passwordParams)
		if err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "hash password").Wrap(err)
		}
		accountID, err = tx.InsertAccount(ctx, NewAccount{
			Username: newUsername,
			Password: pw,
			Games:    legacy.Games,
			Playtime: legacy.Playtime,
			Legacy:   true,
			Rank:     legacy.Rank,
			Creation: s.now(),
		})
		if err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").With("operation", "insert account").Wrap(err)
		}
		if len(legacy.Achievements) > 0 {
			if err := tx.InsertAchievements(ctx, accountID, legacy.Achievements, true); err != nil {
				return oops.Code("ACCOUNT_MIGRATE_FAILED").
					With("operation", "copy legacy achievements").
					With("account_id", accountID).
					Wrap(err)
			}
		}
		if err := tx.DeleteLegacy(ctx, legacy.ID); err != nil {
			return oops.Code("ACCOUNT_MIGRATE_FAILED").
				With("operation", "delete legacy account").
				With("legacy_id", legacy.ID).
				Wrap(err)
		}
		result = Success
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return s.finish(span, OpMigrate, AlreadyRegistered, nil)
	}
	if err == nil && result.OK() {
		s.logger.InfoContext(ctx, "legacy account migrated", "account_id", accountID, "username", newUsername)
	}
	return s.finish(span, OpMigrate, result, err)
}

// ChangePassword replaces the password of the account logged in as identity.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string, identity Identity) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpChangePassword)
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return s.finish(span, OpChangePassword, Result{}, oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").Wrap(err))
	}

	var result Result
	err = s.store.InTx(ctx, func(tx Tx) error {
		creds, err := tx.CredentialsBySession(ctx, fingerprint, s.now())
		if errors.Is(err, ErrNotFound) {
			result = NotFound
			return nil
		}
		if err != nil {
			return oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").With("operation", "get credentials").Wrap(err)
		}

		ok, err := s.hasher.Verify(ctx, []byte(oldPassword), creds.Password)
		if err != nil {
			return oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
		}
		if !ok {
			result = WrongPassword
			return nil
		}
		if missing := s.policy.MissingPasswordRequirements(newPassword); len(missing) > 0 {
			result = InvalidPassword(missing)
			return nil
		}

		pw, err := s.hasher.Create(ctx, []byte(newPassword), s.passwordParams)
		if err != nil {
			return oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
		}
		if err := tx.UpdatePassword(ctx, creds.AccountID, pw); err != nil {
			return oops.Code("ACCOUNT_CHANGE_PASSWORD_FAILED").
				With("operation", "update password").
				With("account_id", creds.AccountID).
				Wrap(err)
		}
		result = Success
		return nil
	})
	return s.finish(span, OpChangePassword, result, err)
}

// Refresh extends the session of identity.
func (s *Service) Refresh(ctx context.Context, identity Identity) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpRefresh)
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return s.finish(span, OpRefresh, Result{}, err)
	}
	var result Result
	err = s.store.InTx(ctx, func(tx Tx) error {
		result, err = s.sessions.Refresh(ctx, tx, fingerprint)
		return err
	})
	return s.finish(span, OpRefresh, result, err)
}

// Logout ends the session of identity, or every session of its account.
func (s *Service) Logout(ctx context.Context, identity Identity, all bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpLogout)
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return s.finish(span, OpLogout, Result{}, err)
	}
	var result Result
	err = s.store.InTx(ctx, func(tx Tx) error {
		result, err = s.sessions.Logout(ctx, tx, fingerprint, all)
		return err
	})
	return s.finish(span, OpLogout, result, err)
}

// PurgeExpiredSessions deletes every expired session.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		n, err = s.sessions.PurgeExpired(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetAchievementCompletion sets the completion flag of an achievement.
// AchievementCompleted is published exactly once per not-completed to
// completed transition, even under concurrent calls.
func (s *Service) SetAchievementCompletion(ctx context.Context, accountID int64, achievement Achievement, completed bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpSetAchievementCompletion, trace.WithAttributes(attribute.Int64("account.id", accountID)))
	if !achievement.Valid() {
		return s.finish(span, OpSetAchievementCompletion, Result{}, oops.Code("ACCOUNT_INVALID_ACHIEVEMENT").
			With("achievement", string(achievement)).
			Errorf("unknown achievement"))
	}

	var (
		result       Result
		transitioned bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.AccountExists(ctx, accountID)
		if err != nil {
			return oops.Code("ACCOUNT_ACHIEVEMENT_FAILED").With("operation", "check account").Wrap(err)
		}
		if !exists {
			result = NotFound
			return nil
		}
		if completed {
			transitioned, err = tx.CompleteAchievement(ctx, accountID, achievement)
		} else {
			err = tx.ResetAchievement(ctx, accountID, achievement)
		}
		if err != nil {
			return oops.Code("ACCOUNT_ACHIEVEMENT_FAILED").
				With("operation", "set completion").
				With("account_id", accountID).
				With("achievement", string(achievement)).
				Wrap(err)
		}
		result = Success
		return nil
	})
	if err == nil && transitioned {
		s.notifier.Publish(AchievementCompleted{AccountID: accountID, Achievement: achievement}, true)
	}
	return s.finish(span, OpSetAchievementCompletion, result, err)
}

// SetAchievementProgression stores the progression payload of an
// achievement. data must be a JSON object. It never publishes.
func (s *Service) SetAchievementProgression(ctx context.Context, accountID int64, achievement Achievement, data json.RawMessage) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpSetAchievementProgression, trace.WithAttributes(attribute.Int64("account.id", accountID)))
	if !achievement.Valid() {
		return s.finish(span, OpSetAchievementProgression, Result{}, oops.Code("ACCOUNT_INVALID_ACHIEVEMENT").
			With("achievement", string(achievement)).
			Errorf("unknown achievement"))
	}
	if err := validateData(data); err != nil {
		return s.finish(span, OpSetAchievementProgression, Result{}, err)
	}

	var result Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.AccountExists(ctx, accountID)
		if err != nil {
			return oops.Code("ACCOUNT_ACHIEVEMENT_FAILED").With("operation", "check account").Wrap(err)
		}
		if !exists {
			result = NotFound
			return nil
		}
		if err := tx.UpsertAchievementData(ctx, accountID, achievement, data); err != nil {
			return oops.Code("ACCOUNT_ACHIEVEMENT_FAILED").
				With("operation", "set progression").
				With("account_id", accountID).
				With("achievement", string(achievement)).
				Wrap(err)
		}
		result = Success
		return nil
	})
	return s.finish(span, OpSetAchievementProgression, result, err)
}

// Achievements returns every stored achievement of an account.
func (s *Service) Achievements(ctx context.Context, accountID int64) (map[Achievement]Progression, error) {
	var out map[Achievement]Progression
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Achievements(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "get achievements").
			With("account_id", accountID).
			Wrap(err)
	}
	return out, nil
}

// Achievement returns one achievement of an account, or ZeroProgression.
func (s *Service) Achievement(ctx context.Context, accountID int64, achievement Achievement) (Progression, error) {
	var out Progression
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Achievement(ctx, accountID, achievement)
		return err
	})
	if err != nil {
		return Progression{}, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "get achievement").
			With("account_id", accountID).
			With("achievement", string(achievement)).
			Wrap(err)
	}
	return out, nil
}

// SetRank changes the rank of an account. Setting the current rank writes and
// publishes nothing. The row is locked for the read-compare-write so two
// concurrent changes publish one event each, in commit order.
func (s *Service) SetRank(ctx context.Context, accountID int64, rank Rank) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpSetRank, trace.WithAttributes(attribute.Int64("account.id", accountID)))
	if !rank.Valid() {
		return s.finish(span, OpSetRank, Result{}, oops.Code("ACCOUNT_INVALID_RANK").With("rank", int(rank)).Errorf("unknown rank"))
	}

	var (
		result   Result
		previous Rank
		changed  bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.LockRank(ctx, accountID)
		if errors.Is(err, ErrNotFound) {
			result = NotFound
			return nil
		}
		if err != nil {
			return oops.Code("ACCOUNT_SET_RANK_FAILED").With("operation", "lock rank").With("account_id", accountID).Wrap(err)
		}
		result = Success
		if current == rank {
			return nil
		}
		if err := tx.UpdateRank(ctx, accountID, rank); err != nil {
			return oops.Code("ACCOUNT_SET_RANK_FAILED").With("operation", "update rank").With("account_id", accountID).Wrap(err)
		}
		previous, changed = current, true
		return nil
	})
	if err == nil && changed {
		s.notifier.Publish(RankChanged{AccountID: accountID, Previous: previous, Rank: rank}, true)
		s.logger.InfoContext(ctx, "rank changed", "account_id", accountID, "previous", previous, "rank", rank)
	}
	return s.finish(span, OpSetRank, result, err)
}

// UpdateDiscord links a Discord user id to an account. A Discord id already
// linked to another account is AlreadyRegistered.
func (s *Service) UpdateDiscord(ctx context.Context, accountID, discord int64) (Result, error) {
	ctx, span := tracer.Start(ctx, "account."+OpUpdateDiscord, trace.WithAttributes(attribute.Int64("account.id", accountID)))
	var result Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		updated, err := tx.UpdateDiscord(ctx, accountID, discord)
		if err != nil {
			return oops.Code("ACCOUNT_UPDATE_DISCORD_FAILED").With("account_id", accountID).Wrap(err)
		}
		if !updated {
			result = NotFound
			return nil
		}
		result = Success
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return s.finish(span, OpUpdateDiscord, AlreadyRegistered, nil)
	}
	return s.finish(span, OpUpdateDiscord, result, err)
}

// IncrementGames adds one game to an account. It reports false for an
// unknown account.
func (s *Service) IncrementGames(ctx context.Context, accountID int64) (bool, error) {
	var ok bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		ok, err = tx.IncrementGames(ctx, accountID)
		return err
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_INCREMENT_FAILED").With("field", "games").With("account_id", accountID).Wrap(err)
	}
	return ok, nil
}

// IncrementPlaytime adds d to the playtime of an account. It reports false
// for an unknown account.
func (s *Service) IncrementPlaytime(ctx context.Context, accountID int64, d time.Duration) (bool, error) {
	if d < 0 {
		return false, oops.Code("ACCOUNT_INVALID_DURATION").With("duration", d.String()).Errorf("playtime increment must not be negative")
	}
	var ok bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		ok, err = tx.IncrementPlaytime(ctx, accountID, d)
		return err
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_INCREMENT_FAILED").With("field", "playtime").With("account_id", accountID).Wrap(err)
	}
	return ok, nil
}

// FindByUsername looks an account up by its exact username.
func (s *Service) FindByUsername(ctx context.Context, username string) (Account, bool, error) {
	if !storable(username) {
		return Account{}, false, nil
	}
	return s.findOne(ctx, "find by username", func(tx Tx) (Account, error) {
		return tx.AccountByUsername(ctx, username)
	})
}

// FindByID looks an account up by id.
func (s *Service) FindByID(ctx context.Context, id int64) (Account, bool, error) {
	return s.findOne(ctx, "find by id", func(tx Tx) (Account, error) {
		return tx.AccountByID(ctx, id)
	})
}

// FindByDiscord looks an account up by its linked Discord id.
func (s *Service) FindByDiscord(ctx context.Context, discord int64) (Account, bool, error) {
	return s.findOne(ctx, "find by discord", func(tx Tx) (Account, error) {
		return tx.AccountByDiscord(ctx, discord)
	})
}

// FindByIdentity returns the account logged in as identity. Expired sessions
// do not count.
func (s *Service) FindByIdentity(ctx context.Context, identity Identity) (Account, bool, error) {
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return Account{}, false, err
	}
	return s.findOne(ctx, "find by identity", func(tx Tx) (Account, error) {
		return tx.AccountBySession(ctx, fingerprint, s.now())
	})
}

// ExistsByID reports whether an account exists.
func (s *Service) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		exists, err = tx.AccountExists(ctx, id)
		return err
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "exists by id").Wrap(err)
	}
	return exists, nil
}

// ExistsByIdentity reports whether identity has an unexpired session. It
// agrees with FindByIdentity.
func (s *Service) ExistsByIdentity(ctx context.Context, identity Identity) (bool, error) {
	fingerprint, err := s.sessions.Fingerprint(ctx, identity)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		exists, err = tx.ActiveSessionExists(ctx, fingerprint, s.now())
		return err
	})
	if err != nil {
		return false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "exists by identity").Wrap(err)
	}
	return exists, nil
}

// SeedTestAccount creates the OWNER account test/test when it is missing.
// It is meant for testing mode only and reports whether it created anything.
func (s *Service) SeedTestAccount(ctx context.Context) (bool, error) {
	var created bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.UsernameExists(ctx, TestUsername)
		if err != nil || exists {
			return err
		}
		pw, err := s.hasher.Create(ctx, []byte(TestPassword), s.passwordParams)
		if err != nil {
			return err
		}
		if _, err := tx.InsertAccount(ctx, NewAccount{
			Username: TestUsername,
			Password: pw,
			Rank:     RankOwner,
			Creation: s.now(),
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_SEED_FAILED").Wrap(err)
	}
	if created {
		s.logger.WarnContext(ctx, "testing mode enabled, created test account",
			"credentials", TestUsername+":"+TestPassword)
	}
	return created, nil
}

func (s *Service) findOne(ctx context.Context, operation string, get func(tx Tx) (Account, error)) (Account, bool, error) {
	var (
		acc   Account
		found bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := get(tx)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		acc, found = a, true
		return nil
	})
	if err != nil {
		return Account{}, false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", operation).Wrap(err)
	}
	return acc, found, nil
}

// pseudonym is the SHA-256 of the lowercased username, the only form in
// which legacy usernames are known.
func (s *Service) pseudonym(ctx context.Context, username string) ([]byte, error) {
	h, err := s.hasher.Create(ctx, []byte(strings.ToLower(username)), hash.SHA256)
	if err != nil {
		return nil, err
	}
	return h.Digest, nil
}

func (s *Service) usernameRequirements(username string) []Requirement {
	missing := s.policy.MissingUsernameRequirements(username)
	return append(missing, storageRequirements(username)...)
}

// finish records the outcome of operation and ends its span.
func (s *Service) finish(span trace.Span, operation string, result Result, err error) (Result, error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("account.result", result.Kind.String()))
	}
	if s.recorder != nil {
		if err != nil {
			s.recorder.RecordOperation(operation, resultError)
		} else {
			s.recorder.RecordOperation(operation, result.Kind.String())
		}
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
