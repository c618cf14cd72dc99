// Package core contains the single source of truth for schema state. It provides
// the canonical, dialect-normalized representation of tables, columns, and indexes
// that snapshot builders produce and that the differ, risk classifier, and DDL
// generators consume.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLite     Dialect = "sqlite"
)

// SupportedDialects returns a slice of all supported dialect values.
func SupportedDialects() []Dialect {
	return []Dialect{DialectMySQL, DialectPostgreSQL, DialectSQLite}
}

// IsValidDialect reports whether d is a recognized dialect string.
func IsValidDialect(d string) bool {
	for _, supported := range SupportedDialects() {
		if strings.EqualFold(string(supported), d) {
			return true
		}
	}
	return false
}

// Snapshot is a canonical description of a schema at a point in time.
// It is rebuilt fresh on every detection cycle and never mutated in place.
type Snapshot struct {
	Dialect Dialect
	Tables  map[string]*Table
}

// Table represents a table in a snapshot.
type Table struct {
	Name    string    `json:"name"`
	Columns []*Column `json:"columns"`
	Indexes []*Index  `json:"indexes,omitempty"`
}

// Column represents a single column inside a table. Type holds the canonical
// spelling produced by NormalizeType, so two snapshots from different sources
// compare equal when their storage types agree.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"defaultValue,omitempty"`
	Unique       bool    `json:"unique,omitempty"`
	PrimaryKey   bool    `json:"primaryKey,omitempty"`
}

// Index represents a secondary index on a table.
type Index struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// GetName methods allow these types to be used with a generic named sort.
func (t *Table) GetName() string  { return t.Name }
func (c *Column) GetName() string { return c.Name }
func (i *Index) GetName() string  { return i.Name }

// NewSnapshot returns an empty snapshot for the given dialect.
func NewSnapshot(dialect Dialect) *Snapshot {
	return &Snapshot{Dialect: dialect, Tables: make(map[string]*Table)}
}

// TableNames returns the snapshot's table names in lexicographic order.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindTable looks for a table by name inside a snapshot.
func (s *Snapshot) FindTable(name string) *Table {
	if t, ok := s.Tables[name]; ok {
		return t
	}
	for n, t := range s.Tables {
		if strings.EqualFold(n, name) {
			return t
		}
	}
	return nil
}

// FindColumn looks for a column by name inside a table.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// FindIndex looks for an index by name inside a table.
func (t *Table) FindIndex(name string) *Index {
	for _, i := range t.Indexes {
		if strings.EqualFold(i.Name, name) {
			return i
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, c.Clone())
	}
	for _, i := range t.Indexes {
		out.Indexes = append(out.Indexes, i.Clone())
	}
	return out
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := *c
	if c.DefaultValue != nil {
		v := *c.DefaultValue
		out.DefaultValue = &v
	}
	return &out
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	return &Index{Name: i.Name, Columns: append([]string(nil), i.Columns...), Unique: i.Unique}
}

// String returns a short description of a table.
func (t *Table) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d indexes)", t.Name, len(t.Columns), len(t.Indexes))
}

// Equal reports whether two columns have the same canonical definition.
// Equal definitions never produce a change operation.
func (c *Column) Equal(other *Column) bool {
	if other == nil {
		return false
	}
	return strings.EqualFold(c.Type, other.Type) &&
		c.Nullable == other.Nullable &&
		c.Unique == other.Unique &&
		c.PrimaryKey == other.PrimaryKey &&
		ptrEq(c.DefaultValue, other.DefaultValue)
}

// Equal reports whether two indexes cover the same columns with the same uniqueness.
func (i *Index) Equal(other *Index) bool {
	if other == nil || i.Unique != other.Unique || len(i.Columns) != len(other.Columns) {
		return false
	}
	for n, col := range i.Columns {
		if !strings.EqualFold(col, other.Columns[n]) {
			return false
		}
	}
	return true
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Hash returns a stable content hash of the snapshot. Two snapshots with the
// same canonical table definitions hash identically regardless of source.
func (s *Snapshot) Hash() string {
	h := sha256.New()
	for _, name := range s.TableNames() {
		t := s.Tables[name]
		fmt.Fprintf(h, "table:%s\n", strings.ToLower(t.Name))
		for _, c := range t.Columns {
			def := ""
			if c.DefaultValue != nil {
				def = *c.DefaultValue
			}
			fmt.Fprintf(h, "col:%s:%s:%t:%t:%t:%s\n",
				strings.ToLower(c.Name), strings.ToUpper(c.Type), c.Nullable, c.Unique, c.PrimaryKey, def)
		}
		idxs := make([]string, 0, len(t.Indexes))
		for _, i := range t.Indexes {
			idxs = append(idxs, fmt.Sprintf("idx:%s:%s:%t", strings.ToLower(i.Name), strings.ToLower(strings.Join(i.Columns, ",")), i.Unique))
		}
		sort.Strings(idxs)
		for _, line := range idxs {
			fmt.Fprintln(h, line)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TypeFamily groups canonical types for widening/narrowing analysis.
type TypeFamily string

const (
	FamilyString   TypeFamily = "string"
	FamilyInt      TypeFamily = "int"
	FamilyFloat    TypeFamily = "float"
	FamilyBoolean  TypeFamily = "boolean"
	FamilyDatetime TypeFamily = "datetime"
	FamilyJSON     TypeFamily = "json"
	FamilyBinary   TypeFamily = "binary"
	FamilyUUID     TypeFamily = "uuid"
	FamilyUnknown  TypeFamily = "unknown"
)

type typeFamilyRule struct {
	family     TypeFamily
	substrings []string
}

var typeFamilyRules = []typeFamilyRule{
	{family: FamilyBoolean, substrings: []string{"bool", "tinyint(1)"}},
	{family: FamilyUUID, substrings: []string{"uuid"}},
	{family: FamilyInt, substrings: []string{"int", "serial"}},
	{family: FamilyFloat, substrings: []string{"float", "double", "decimal", "numeric", "real"}},
	{family: FamilyDatetime, substrings: []string{"timestamp", "datetime", "date", "time"}},
	{family: FamilyJSON, substrings: []string{"json"}},
	{family: FamilyBinary, substrings: []string{"blob", "binary", "bytea"}},
	{family: FamilyString, substrings: []string{"char", "text", "string", "clob"}},
}

// FamilyOf maps a canonical or raw SQL type string to its type family. The
// matching is case-insensitive and based on substring containment.
func FamilyOf(sqlType string) TypeFamily {
	lower := strings.ToLower(strings.TrimSpace(sqlType))
	if lower == "" {
		return FamilyUnknown
	}
	for _, rule := range typeFamilyRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.family
			}
		}
	}
	return FamilyUnknown
}

// typeAliases maps dialect spellings to one canonical form. Wrapped or custom
// spellings (serial columns, sqlite affinities, verbose PostgreSQL names) unwrap
// to their underlying storage type so comparison does not report false drift.
var typeAliases = map[string]string{
	"character varying":           "VARCHAR",
	"varying character":           "VARCHAR",
	"nvarchar":                    "VARCHAR",
	"character":                   "CHAR",
	"int":                         "INTEGER",
	"int4":                        "INTEGER",
	"mediumint":                   "INTEGER",
	"serial":                      "INTEGER",
	"int8":                        "BIGINT",
	"bigserial":                   "BIGINT",
	"int2":                        "SMALLINT",
	"smallserial":                 "SMALLINT",
	"tinyint":                     "SMALLINT",
	"bool":                        "BOOLEAN",
	"tinyint(1)":                  "BOOLEAN",
	"double precision":            "DOUBLE",
	"float8":                      "DOUBLE",
	"float4":                      "FLOAT",
	"real":                        "FLOAT",
	"numeric":                     "DECIMAL",
	"timestamp without time zone": "TIMESTAMP",
	"timestamp with time zone":    "TIMESTAMPTZ",
	"timestamptz":                 "TIMESTAMPTZ",
	"datetime":                    "TIMESTAMP",
	"jsonb":                       "JSON",
	"bytea":                       "BLOB",
	"varbinary":                   "BLOB",
	"longblob":                    "BLOB",
	"mediumblob":                  "BLOB",
	"tinytext":                    "TEXT",
	"mediumtext":                  "TEXT",
	"longtext":                    "TEXT",
	"clob":                        "TEXT",
}

var reTypeWithArgs = regexp.MustCompile(`^\s*([a-zA-Z0-9_ ]+?)\s*\(\s*([0-9]+(?:\s*,\s*[0-9]+)?)\s*\)\s*$`)

// NormalizeType maps a raw dialect type spelling to the canonical form used in
// snapshots, preserving length/precision arguments: "character varying(120)" and
// "VARCHAR(120)" both normalize to "VARCHAR(120)".
func NormalizeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	// Exact alias match first so tinyint(1) wins over the parenthesized path.
	if canon, ok := typeAliases[lower]; ok {
		return canon
	}
	if m := reTypeWithArgs.FindStringSubmatch(lower); m != nil {
		base := strings.TrimSpace(m[1])
		args := strings.ReplaceAll(m[2], " ", "")
		if canon, ok := typeAliases[base]; ok {
			base = canon
		} else {
			base = strings.ToUpper(base)
		}
		// Integer display widths are presentation only, not storage.
		switch base {
		case "INTEGER", "BIGINT", "SMALLINT":
			return base
		}
		return fmt.Sprintf("%s(%s)", base, args)
	}
	return strings.ToUpper(lower)
}

var reTypeLen = regexp.MustCompile(`(?i)^\s*([a-z0-9_]+)\s*\(\s*(\d+)\s*\)`) // e.g. VARCHAR(255)

// TypeLength extracts the base name and length of a length-parameterized type.
// It returns ok=false for types without a meaningful length argument.
func TypeLength(sqlType string) (base string, length int, ok bool) {
	m := reTypeLen.FindStringSubmatch(strings.TrimSpace(sqlType))
	if len(m) != 3 {
		return "", 0, false
	}
	base = strings.ToUpper(strings.TrimSpace(m[1]))
	switch base {
	case "VARCHAR", "CHAR", "DECIMAL":
	default:
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return base, n, true
}

// intWidths orders integer types from narrowest to widest.
var intWidths = map[string]int{"SMALLINT": 1, "INTEGER": 2, "BIGINT": 3}

// stringWidths orders string types from narrowest to widest.
var stringWidths = map[string]int{"CHAR": 1, "VARCHAR": 2, "TEXT": 3}

// IsWidening reports whether changing a column from oldType to newType can only
// gain capacity (shorter to longer string, smaller to larger integer). Widening
// conversions copy safely during a rebuild.
func IsWidening(oldType, newType string) bool {
	oldType, newType = NormalizeType(oldType), NormalizeType(newType)
	if strings.EqualFold(oldType, newType) {
		return false
	}
	if FamilyOf(oldType) != FamilyOf(newType) {
		return false
	}

	oldBase, oldLen, oldOk := TypeLength(oldType)
	newBase, newLen, newOk := TypeLength(newType)
	if oldOk && newOk && oldBase == newBase {
		return newLen >= oldLen
	}

	baseOf := func(t string) string {
		if b, _, ok := TypeLength(t); ok {
			return b
		}
		return t
	}
	ob, nb := baseOf(oldType), baseOf(newType)
	if ow, ok := intWidths[ob]; ok {
		if nw, ok := intWidths[nb]; ok {
			return nw > ow
		}
	}
	if ow, ok := stringWidths[ob]; ok {
		if nw, ok := stringWidths[nb]; ok {
			return nw > ow
		}
	}
	if ob == "FLOAT" && (nb == "DOUBLE" || nb == "DECIMAL") {
		return true
	}
	return false
}

// IsNarrowing reports whether a type change can lose data: the inverse of a
// widening conversion within one family, or any cross-family conversion.
func IsNarrowing(oldType, newType string) bool {
	oldType, newType = NormalizeType(oldType), NormalizeType(newType)
	if strings.EqualFold(oldType, newType) {
		return false
	}
	if FamilyOf(oldType) != FamilyOf(newType) {
		return true
	}
	return IsWidening(newType, oldType)
}
