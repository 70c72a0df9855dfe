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
			log.Println("creating rfq_quotes table...")
			if err := mghelper.CreateSchema(ctx, db, &dao.QuoteDao{}); err != nil {
				return err
			}
			return mghelper.CreateModelIndexes(ctx, db, &dao.QuoteDao{}, "meta_transaction_hash", "maker_uri", "created_at")
		},
		func(ctx context.Context, db *bun.DB) error {
			log.Println("dropping rfq_quotes table...")
			return mghelper.DropTables(ctx, db, &dao.QuoteDao{})
		},
	)
}
