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
			log.Println("creating rfq_jobs table...")
			if err := mghelper.CreateSchema(ctx, db, &dao.JobDao{}); err != nil {
				return err
			}
			return mghelper.CreateModelIndexes(ctx, db, &dao.JobDao{}, "status", "worker_address", "created_at")
		},
		func(ctx context.Context, db *bun.DB) error {
			log.Println("dropping rfq_jobs table...")
			return mghelper.DropTables(ctx, db, &dao.JobDao{})
		},
	)
}
