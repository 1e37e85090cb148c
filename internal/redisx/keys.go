package redisx

import "time"

const (
	// Idempotency konfirmasi payment: idem:payment:confirm:{gateway_payment_id} -> order_id
	KeyIdemPayment = "idem:payment:confirm:%s"

	// Jumlah gateway order saat prepare: payment:intent:{gateway_order_id} -> amount (paise)
	KeyIntentAmount = "payment:intent:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLIntent      = 24 * time.Hour
)
