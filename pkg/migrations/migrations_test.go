package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/rfqlabs/rfq-relayer/pkg/migrations/rfqdb"
	"github.com/rfqlabs/rfq-relayer/pkg/pgutil"
)

func TestRfqDBMigrations_Apply(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, rfqdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	expectedTables := []string{
		"rfq_quotes",
		"rfq_jobs",
		"rfq_transaction_submissions",
		"rfq_worker_heartbeats",
		"bun_migrations",
	}

	for _, table := range expectedTables {
		pgutil.AssertTableExists(t, db, table)
	}

	pgutil.AssertIndexExists(t, db, "idx_rfq_jobs_status")
	pgutil.AssertIndexExists(t, db, "idx_rfq_jobs_worker_address")
	pgutil.AssertIndexExists(t, db, "idx_rfq_transaction_submissions_order_hash")
	pgutil.AssertIndexExists(t, db, "idx_rfq_transaction_submissions_tx_hash")
}

func TestRfqDBMigrations_Idempotency(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, rfqdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Second run should be a no-op, not a failure.
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	pgutil.AssertTableExists(t, db, "rfq_jobs")
	pgutil.AssertTableExists(t, db, "rfq_quotes")
}

func TestRfqDBMigrations_Rollback(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, rfqdb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	pgutil.AssertTableExists(t, db, "rfq_jobs")
	pgutil.AssertTableExists(t, db, "rfq_transaction_submissions")

	// Rollback removes the whole group applied by Migrate().
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	pgutil.AssertTableNotExists(t, db, "rfq_worker_heartbeats")
	pgutil.AssertTableNotExists(t, db, "rfq_transaction_submissions")
	pgutil.AssertTableNotExists(t, db, "rfq_jobs")
	pgutil.AssertTableNotExists(t, db, "rfq_quotes")
}
