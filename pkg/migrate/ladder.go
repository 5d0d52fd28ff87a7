package migrate

// Step moves the schema from Version-1 to Version.
type Step struct {
	Version int
	Name    string
	Changes []Change
}

func table(name string, cols ...Column) Change {
	return Change{Kind: KindCreateTable, Table: name, Columns: cols}
}

func addColumn(tbl, name string, typ ColumnType) Change {
	return Change{Kind: KindAddColumn, Table: tbl, Columns: []Column{{Name: name, Type: typ}}}
}

func index(name, tbl string, cols ...string) Change {
	c := Change{Kind: KindCreateIndex, Table: tbl, Index: name}
	for _, col := range cols {
		c.Columns = append(c.Columns, Column{Name: col})
	}
	return c
}

// Ladder returns the schema history of the local store, oldest first.
func Ladder() []Step {
	return []Step{
		{
			Version: 1,
			Name:    "base_tables",
			Changes: []Change{
				table("meta",
					Column{Name: "key", Type: TypeText, PrimaryKey: true},
					Column{Name: "value", Type: TypeText, NotNull: true},
				),
				table("clients",
					Column{Name: "id", Type: TypeUUID, PrimaryKey: true},
					Column{Name: "name", Type: TypeText, NotNull: true},
					Column{Name: "company_name", Type: TypeText},
					Column{Name: "code", Type: TypeInt, NotNull: true},
					Column{Name: "active", Type: TypeBool, NotNull: true},
					Column{Name: "phone", Type: TypeText},
					Column{Name: "address", Type: TypeText},
					Column{Name: "city", Type: TypeText},
					Column{Name: "sales_rep_id", Type: TypeText, NotNull: true},
					Column{Name: "updated_at", Type: TypeTimestamp},
				),
				table("products",
					Column{Name: "id", Type: TypeUUID, PrimaryKey: true},
					Column{Name: "code", Type: TypeInt, NotNull: true, Unique: true},
					Column{Name: "name", Type: TypeText, NotNull: true},
					Column{Name: "sale_price", Type: TypeDecimal, NotNull: true},
					Column{Name: "cost", Type: TypeDecimal},
					Column{Name: "stock", Type: TypeInt, NotNull: true},
					Column{Name: "main_unit", Type: TypeText, NotNull: true},
					Column{Name: "updated_at", Type: TypeTimestamp},
				),
				table("payment_tables",
					Column{Name: "id", Type: TypeUUID, PrimaryKey: true},
					Column{Name: "name", Type: TypeText, NotNull: true},
					Column{Name: "description", Type: TypeText},
					Column{Name: "type", Type: TypeText},
					Column{Name: "location", Type: TypeText},
					Column{Name: "active", Type: TypeBool, NotNull: true},
					Column{Name: "updated_at", Type: TypeTimestamp},
				),
				table("orders",
					Column{Name: "id", Type: TypeText, PrimaryKey: true},
					Column{Name: "sales_rep_id", Type: TypeText, NotNull: true},
					Column{Name: "customer_id", Type: TypeUUID, NotNull: true},
					Column{Name: "customer_name", Type: TypeText},
					Column{Name: "items", Type: TypeText, NotNull: true},
					Column{Name: "total", Type: TypeDecimal, NotNull: true},
					Column{Name: "status", Type: TypeText, NotNull: true},
					Column{Name: "sync_status", Type: TypeText, NotNull: true},
					Column{Name: "notes", Type: TypeText},
					Column{Name: "payment_method", Type: TypeText},
					Column{Name: "created_at", Type: TypeTimestamp, NotNull: true},
				),
			},
		},
		{
			Version: 2,
			Name:    "visit_schedule_and_units",
			Changes: []Change{
				addColumn("clients", "visit_days", TypeText),
				addColumn("clients", "visit_sequence", TypeInt),
				addColumn("clients", "status", TypeText),
				addColumn("products", "sub_unit", TypeText),
				addColumn("products", "sub_unit_ratio", TypeInt),
				addColumn("products", "max_discount_percent", TypeDecimal),
			},
		},
		{
			Version: 3,
			Name:    "order_tracking_and_audit",
			Changes: []Change{
				addColumn("orders", "reason", TypeText),
				addColumn("orders", "payment_table_id", TypeUUID),
				addColumn("orders", "last_error", TypeText),
				addColumn("orders", "transmitted_at", TypeTimestamp),
				table("audit_log",
					Column{Name: "id", Type: TypeUUID, PrimaryKey: true},
					Column{Name: "kind", Type: TypeText, NotNull: true},
					Column{Name: "order_id", Type: TypeText, NotNull: true},
					Column{Name: "metadata", Type: TypeText},
					Column{Name: "occurred_at", Type: TypeTimestamp, NotNull: true},
				),
				index("idx_clients_sales_rep_id", "clients", "sales_rep_id"),
				index("idx_orders_sync_status", "orders", "sync_status"),
				index("idx_orders_sales_rep_id", "orders", "sales_rep_id"),
				index("idx_audit_log_order_id", "audit_log", "order_id"),
			},
		},
	}
}

// LatestVersion is the version the current ladder reaches.
func LatestVersion() int {
	steps := Ladder()
	return steps[len(steps)-1].Version
}
