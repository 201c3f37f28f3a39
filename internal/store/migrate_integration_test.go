// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/manas360/authcore/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Pending).To(BeEmpty())
		Expect(st.Name).To(Equal("000006_users_last_failed_at"))
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{6}))

		Expect(migrator.Steps(1)).To(Succeed())
		pending, err = migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("creates the auth tables", func(ctx SpecContext) {
		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{Attempts: 3, Backoff: 100 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		for _, table := range []string{"users", "recovery_codes", "refresh_tokens", "otp_challenges", "password_resets", "webhook_events"} {
			var exists bool
			err := pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue(), table)
		}
	})

	It("enforces case-insensitive email uniqueness", func(ctx SpecContext) {
		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		insert := `INSERT INTO users (id, email, name, role) VALUES ($1, $2, 'Asha', 'patient')`
		_, err = pool.Exec(ctx, insert, "01J0000000000000000000000A", "asha@example.com")
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, insert, "01J0000000000000000000000B", "ASHA@example.com")
		Expect(err).To(HaveOccurred())
	})

	It("requires an email or phone", func(ctx context.Context) {
		pool, err := store.Connect(ctx, connStr, store.ConnectOptions{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		_, err = pool.Exec(ctx, `INSERT INTO users (id, name, role) VALUES ('01J0000000000000000000000C', 'Nobody', 'patient')`)
		Expect(err).To(HaveOccurred())
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
