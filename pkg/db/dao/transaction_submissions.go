package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TransactionSubmissionDao is a data access object that maps directly to the
// 'rfq_transaction_submissions' table in PostgreSQL.
type TransactionSubmissionDao struct {
	bun.BaseModel `bun:"table:rfq_transaction_submissions"`
	ID            string    `bun:"id,pk,type:VARCHAR(36)"`
	OrderHash     string    `bun:"order_hash,notnull,type:VARCHAR(66)"`
	TxHash        string    `bun:"tx_hash,notnull,type:VARCHAR(66)"`
	FromAddress   string    `bun:"from_address,notnull,type:VARCHAR(42)"`
	ToAddress     string    `bun:"to_address,notnull,type:VARCHAR(42)"`
	Nonce         int64     `bun:"nonce,notnull"`
	GasPrice      string    `bun:"gas_price,notnull,type:NUMERIC(78,0)"`
	GasUsed       *int64    `bun:"gas_used"`
	BlockMined    *int64    `bun:"block_mined"`
	Status        string    `bun:"status,notnull,type:VARCHAR(30)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:now()"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:now()"`
}
