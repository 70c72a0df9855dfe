package rfqdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/rfqlabs/rfq-relayer/pkg/db/dao"
	mghelper "github.com/rfqlabs/rfq-relayer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			log.Println("creating rfq_transaction_submissions table...")
			if err := mghelper.CreateSchema(ctx, db, &dao.TransactionSubmissionDao{}); err != nil {
				return err
			}
			if err := mghelper.CreateModelUniqueIndexes(ctx, db, &dao.TransactionSubmissionDao{}, "tx_hash"); err != nil {
				return err
			}
			return mghelper.CreateModelIndexes(ctx, db, &dao.TransactionSubmissionDao{}, "order_hash", "status")
		},
		func(ctx context.Context, db *bun.DB) error {
			log.Println("dropping rfq_transaction_submissions table...")
			return mghelper.DropTables(ctx, db, &dao.TransactionSubmissionDao{})
		},
	)
}
