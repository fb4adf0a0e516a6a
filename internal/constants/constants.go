package constants

import "time"

const (
	RequestTimeout  = 30 * time.Second
	DatabaseTimeout = 5 * time.Second
	WebhookTimeout  = 5 * time.Second
	TickTimeout     = 10 * time.Second
	ReconcileBudget = 2 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBusyTimeoutMS   = 5000
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSSendBuffer      = 256
	WSWriteWait       = 10 * time.Second
)

const (
	TransactionListLimit = 50
	ReconcileBatchSize   = 500
)

const (
	MaxPurchaseQuantity = 1000
	MaxRefineBatches    = 10000
	MaxSaleQuantity     = 1_000_000
)
