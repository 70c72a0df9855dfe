package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// JobDao is a data access object that maps directly to the 'rfq_jobs' table in PostgreSQL.
type JobDao struct {
	bun.BaseModel  `bun:"table:rfq_jobs"`
	OrderHash      string    `bun:"order_hash,pk,type:VARCHAR(66)"`
	ChainID        int64     `bun:"chain_id,notnull"`
	IntegratorID   *string   `bun:"integrator_id,type:VARCHAR(128)"`
	MakerURI       string    `bun:"maker_uri,notnull,type:VARCHAR(512)"`
	Status         string    `bun:"status,notnull,type:VARCHAR(40)"`
	Kind           string    `bun:"kind,notnull,type:VARCHAR(10)"`
	OrderJSON      []byte    `bun:"order_json,type:jsonb"`
	FeeJSON        []byte    `bun:"fee_json,type:jsonb"`
	TakerSigJSON   []byte    `bun:"taker_signature_json,type:jsonb"`
	MakerSigJSON   []byte    `bun:"maker_signature_json,type:jsonb"`
	Calldata       []byte    `bun:"calldata,type:bytea"`
	ExpiryUnix     int64     `bun:"expiry_unix,notnull"`
	WorkerAddress  *string   `bun:"worker_address,type:VARCHAR(42)"`
	LastLookResult *bool     `bun:"last_look_result"`
	IsCompleted    bool      `bun:"is_completed,notnull,default:false"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:now()"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:now()"`
}
