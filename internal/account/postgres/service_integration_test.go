// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

//go:build integration

package postgres_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/pbkdf2"

	"github.com/cnnetwork/imperium/internal/account"
	"github.com/cnnetwork/imperium/internal/account/postgres"
	"github.com/cnnetwork/imperium/internal/hash"
	"github.com/cnnetwork/imperium/internal/store"
)

var cheapPassword = hash.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, Length: 64, SaltLength: 16, Version: 0x13}

type published struct {
	mu       sync.Mutex
	messages []account.Message
}

func (p *published) Publish(msg account.Message, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *published) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.Topic() == topic {
			n++
		}
	}
	return n
}

var _ = Describe("Service on PostgreSQL", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		pgStore   *postgres.Store
		svc       *account.Service
		notifier  *published
		now       atomic.Pointer[time.Time]
	)

	identity := func(uuid string) account.Identity {
		return account.Identity{UUID: uuid, USID: "usid-" + uuid, Address: netip.MustParseAddr("192.0.2.1")}
	}

	advance := func(d time.Duration) {
		t := now.Load().Add(d)
		now.Store(&t)
	}

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("imperium"),
			tcpostgres.WithUsername("imperium"),
			tcpostgres.WithPassword("imperium"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		pool, err = store.Connect(ctx, store.PoolConfig{URL: connStr}, logger)
		Expect(err).NotTo(HaveOccurred())

		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		now.Store(&start)

		pgStore = postgres.NewStore(pool)
		notifier = &published{}
		svc, err = account.NewService(pgStore, hash.NewEngine(), account.NoPolicy, notifier,
			account.WithLogger(logger),
			account.WithPasswordParams(cheapPassword),
			account.WithClock(func() time.Time { return *now.Load() }),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("registers, logs in and resolves the identity", func() {
		res, err := svc.Register(ctx, "alice", "correct horse")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultSuccess))

		res, err = svc.Register(ctx, "alice", "another")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultAlreadyRegistered))

		res, err = svc.Login(ctx, "alice", "wrong", identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultWrongPassword))

		res, err = svc.Login(ctx, "alice", "correct horse", identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultSuccess))

		res, err = svc.Login(ctx, "alice", "correct horse", identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultAlreadyLogged))

		acc, found, err := svc.FindByIdentity(ctx, identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(acc.Username).To(Equal("alice"))
		Expect(acc.Rank).To(Equal(account.RankEveryone))
	})

	It("expires sessions by clock and purges them", func() {
		advance(account.SessionTTL)

		exists, err := svc.ExistsByIdentity(ctx, identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())

		purged, err := svc.PurgeExpiredSessions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(purged).To(Equal(int64(1)))

		res, err := svc.Login(ctx, "alice", "correct horse", identity("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultSuccess))
	})

	It("completes an achievement exactly once under contention", func() {
		acc, found, err := svc.FindByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.SetAchievementCompletion(ctx, acc.ID, account.AchievementGamer, true)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()
		Expect(notifier.count(account.TopicAchievementCompleted)).To(Equal(1))

		res, err := svc.SetAchievementProgression(ctx, acc.ID, account.AchievementHyper, json.RawMessage(`{"streak": 3}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())

		progress, err := svc.Achievement(ctx, acc.ID, account.AchievementHyper)
		Expect(err).NotTo(HaveOccurred())
		Expect(progress.Data).To(MatchJSON(`{"streak": 3}`))
		Expect(progress.Completed).To(BeFalse())
	})

	It("changes rank once and links discord uniquely", func() {
		acc, _, err := svc.FindByUsername(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())

		res, err := svc.SetRank(ctx, acc.ID, account.RankModerator)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())
		Expect(notifier.count(account.TopicRankChanged)).To(Equal(1))

		res, err = svc.SetRank(ctx, acc.ID, account.RankModerator)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())
		Expect(notifier.count(account.TopicRankChanged)).To(Equal(1))

		res, err = svc.UpdateDiscord(ctx, acc.ID, 4242)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())

		res, err = svc.Register(ctx, "bob", "hunter22")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())
		bob, _, err := svc.FindByUsername(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())

		res, err = svc.UpdateDiscord(ctx, bob.ID, 4242)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultAlreadyRegistered))

		byDiscord, found, err := svc.FindByDiscord(ctx, 4242)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(byDiscord.ID).To(Equal(acc.ID))
	})

	It("migrates an imported legacy account", func() {
		salt := []byte("0123456789abcdef")
		pseudonym := sha256.Sum256([]byte("oldtimer"))
		legacy := account.LegacyAccount{
			UsernameHash: pseudonym[:],
			Password: hash.Hash{
				Digest: pbkdf2.Key([]byte("legacy-pass"), salt, hash.LegacyPasswordParams.Iterations, hash.LegacyPasswordParams.Length, sha256.New),
				Salt:   salt,
				Params: hash.LegacyPasswordParams,
			},
			Games:        40,
			Playtime:     3 * time.Hour,
			Rank:         account.RankVerified,
			Achievements: []account.Achievement{account.AchievementActive, account.AchievementMonth},
		}
		n, err := pgStore.ImportLegacy(ctx, []account.LegacyAccount{legacy, legacy})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))

		res, err := svc.Migrate(ctx, "OldTimer", "newtimer", "bad")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultNotFound))

		res, err = svc.Register(ctx, "oldtimer", "whatever1")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultInvalidUsername))

		res, err = svc.Migrate(ctx, "OldTimer", "newtimer", "legacy-pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultSuccess))

		acc, found, err := svc.FindByUsername(ctx, "newtimer")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(acc.Legacy).To(BeTrue())
		Expect(acc.Games).To(Equal(40))
		Expect(acc.Playtime).To(Equal(3 * time.Hour))
		Expect(acc.Rank).To(Equal(account.RankVerified))

		achievements, err := svc.Achievements(ctx, acc.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(achievements).To(HaveLen(2))
		Expect(achievements[account.AchievementMonth].Completed).To(BeTrue())

		res, err = svc.Migrate(ctx, "OldTimer", "other", "legacy-pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultNotFound))

		res, err = svc.Login(ctx, "newtimer", "legacy-pass", identity("n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Kind).To(Equal(account.ResultSuccess))
	})
})
