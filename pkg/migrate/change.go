package migrate

import (
	"fmt"
	"strings"
)

// ChangeKind enumerates the schema edits a step may perform. Only additive
// kinds exist; KindRaw is screened by Validate.
type ChangeKind string

const (
	KindCreateTable ChangeKind = "create_table"
	KindAddColumn   ChangeKind = "add_column"
	KindCreateIndex ChangeKind = "create_index"
	KindRaw         ChangeKind = "raw"
)

// ColumnType is a dialect-neutral column type.
type ColumnType string

const (
	TypeUUID      ColumnType = "uuid"
	TypeText      ColumnType = "text"
	TypeInt       ColumnType = "int"
	TypeBool      ColumnType = "bool"
	TypeDecimal   ColumnType = "decimal"
	TypeTimestamp ColumnType = "timestamp"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
	Unique     bool
}

// Change is one DDL statement inside a Step.
type Change struct {
	Kind    ChangeKind
	Table   string
	Columns []Column
	Index   string
	Raw     string
}

// Describe names the change for logs and status output.
func (c Change) Describe() string {
	switch c.Kind {
	case KindCreateTable:
		return "create table " + c.Table
	case KindAddColumn:
		if len(c.Columns) > 0 {
			return fmt.Sprintf("add column %s.%s", c.Table, c.Columns[0].Name)
		}
	case KindCreateIndex:
		return "create index " + c.Index
	}
	return string(c.Kind)
}

// SQL renders the statement for the provided dialect.
func (c Change) SQL(dialect string) (string, error) {
	switch c.Kind {
	case KindCreateTable:
		if c.Table == "" || len(c.Columns) == 0 {
			return "", fmt.Errorf("create table requires a name and columns")
		}
		defs := make([]string, 0, len(c.Columns))
		for _, col := range c.Columns {
			def, err := columnDef(dialect, col)
			if err != nil {
				return "", err
			}
			defs = append(defs, def)
		}
		return fmt.Sprintf("CREATE TABLE %s (%s)", c.Table, strings.Join(defs, ", ")), nil
	case KindAddColumn:
		if c.Table == "" || len(c.Columns) != 1 {
			return "", fmt.Errorf("add column requires a table and exactly one column")
		}
		if c.Columns[0].NotNull || c.Columns[0].PrimaryKey {
			return "", fmt.Errorf("added column %s.%s must be nullable", c.Table, c.Columns[0].Name)
		}
		def, err := columnDef(dialect, c.Columns[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.Table, def), nil
	case KindCreateIndex:
		if c.Index == "" || c.Table == "" || len(c.Columns) == 0 {
			return "", fmt.Errorf("create index requires a name, table and columns")
		}
		names := make([]string, 0, len(c.Columns))
		for _, col := range c.Columns {
			names = append(names, col.Name)
		}
		unique := ""
		if c.Columns[0].Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, c.Index, c.Table, strings.Join(names, ", ")), nil
	case KindRaw:
		if strings.TrimSpace(c.Raw) == "" {
			return "", fmt.Errorf("raw change is empty")
		}
		return c.Raw, nil
	}
	return "", fmt.Errorf("unknown change kind %q", c.Kind)
}

func columnDef(dialect string, col Column) (string, error) {
	typ, err := sqlType(dialect, col.Type)
	if err != nil {
		return "", err
	}
	def := col.Name + " " + typ
	if col.PrimaryKey {
		def += " PRIMARY KEY"
	}
	if col.NotNull && !col.PrimaryKey {
		def += " NOT NULL"
	}
	if col.Unique && !col.PrimaryKey {
		def += " UNIQUE"
	}
	return def, nil
}

func sqlType(dialect string, t ColumnType) (string, error) {
	switch dialect {
	case DialectSQLite:
		switch t {
		case TypeUUID, TypeText, TypeDecimal:
			return "TEXT", nil
		case TypeInt:
			return "INTEGER", nil
		case TypeBool:
			return "BOOLEAN", nil
		case TypeTimestamp:
			return "DATETIME", nil
		}
	case DialectPostgres:
		switch t {
		case TypeUUID:
			return "UUID", nil
		case TypeText:
			return "TEXT", nil
		case TypeDecimal:
			return "NUMERIC(18,6)", nil
		case TypeInt:
			return "INTEGER", nil
		case TypeBool:
			return "BOOLEAN", nil
		case TypeTimestamp:
			return "TIMESTAMPTZ", nil
		}
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
	return "", fmt.Errorf("unsupported column type %q", t)
}
