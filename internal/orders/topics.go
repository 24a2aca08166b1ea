package orders

const (
	TopicOrderCreated     = "order.created"
	TopicOrderUpdated     = "order.updated"
	TopicOrderLineUpdated = "order.line.updated"
	TopicOrderDecided     = "order.decided"
)

var AllTopics = []string{TopicOrderCreated, TopicOrderUpdated, TopicOrderLineUpdated, TopicOrderDecided}

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
