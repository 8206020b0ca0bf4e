package cel

// FilterExpressionExamples lists typical webhook.filter values.
var FilterExpressionExamples = map[string]string{
	"orders_only":         `entityType == "order"`,
	"skip_status_changes": `eventType != "status_changed"`,
	"large_orders":        `total >= 1000.0`,
	"non_empty":           `itemCount > 0`,
	"status_in_list":      `status in ["New", "Bill", "Closed"]`,
	"table_known":         `entityType != "order" || extra["tableNumber"] != "N/A"`,
	"courier_updates":     `entityType == "delivery" && "deliveryStatus" in extra && extra["deliveryStatus"] != "N/A"`,
	"combined":            `(eventType == "created" || eventType == "deleted") && total > 0.0`,
}
