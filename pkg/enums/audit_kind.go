package enums

// AuditKind names an order lifecycle event written to the audit trail.
type AuditKind string

const (
	AuditOrderCreated     AuditKind = "order_created"
	AuditOrderNegated     AuditKind = "order_negated"
	AuditOrderTransmitted AuditKind = "order_transmitted"
	AuditOrderFailed      AuditKind = "order_failed"
	AuditOrderRetried     AuditKind = "order_retried"
	AuditOrderSynced      AuditKind = "order_synced"
	AuditOrderDeleted     AuditKind = "order_deleted"
)

func (a AuditKind) String() string {
	return string(a)
}
