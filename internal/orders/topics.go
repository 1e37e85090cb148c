package orders

const (
	TopicOrderCreated         = "order.created"
	TopicOrderCancelled       = "order.cancelled"
	TopicOrderStatusChanged   = "order.status.changed"
	TopicFulfillmentException = "order.fulfillment.exception"
)

// Topics consumed by the fulfillment worker.
var AllTopics = []string{
	TopicOrderCreated,
	TopicOrderCancelled,
	TopicOrderStatusChanged,
	TopicFulfillmentException,
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
