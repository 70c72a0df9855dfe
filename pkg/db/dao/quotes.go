package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// QuoteDao is a data access object that maps directly to the 'rfq_quotes' table in PostgreSQL.
type QuoteDao struct {
	bun.BaseModel `bun:"table:rfq_quotes"`
	OrderHash     string    `bun:"order_hash,pk,type:VARCHAR(66)"`
	MetaTxHash    string    `bun:"meta_transaction_hash,notnull,type:VARCHAR(66)"`
	ChainID       int64     `bun:"chain_id,notnull"`
	IntegratorID  *string   `bun:"integrator_id,type:VARCHAR(128)"`
	MakerURI      string    `bun:"maker_uri,notnull,type:VARCHAR(512)"`
	OrderJSON     []byte    `bun:"order_json,notnull,type:jsonb"`
	FeeJSON       []byte    `bun:"fee_json,type:jsonb"`
	MakerSigJSON  []byte    `bun:"maker_signature_json,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:now()"`
}
