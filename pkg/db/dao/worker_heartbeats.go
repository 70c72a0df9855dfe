package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// WorkerHeartbeatDao is a data access object that maps directly to the
// 'rfq_worker_heartbeats' table in PostgreSQL.
type WorkerHeartbeatDao struct {
	bun.BaseModel `bun:"table:rfq_worker_heartbeats"`
	Address       string    `bun:"address,pk,type:VARCHAR(42)"`
	Index         int       `bun:"worker_index,notnull"`
	ChainID       int64     `bun:"chain_id,notnull"`
	BalanceWei    string    `bun:"balance_wei,notnull,type:NUMERIC(78,0)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:now()"`
}
