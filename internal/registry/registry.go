// Package registry reads the declared data model from a TOML file and converts
// it into the canonical snapshot form. The registry is the desired state; the
// differ compares it against what introspection found in the live database.
package registry

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"driftsync/internal/core"
	"driftsync/internal/ddl"
)

// modelFile is the top-level TOML document: a [registry] header plus one
// [[models]] block per table.
type modelFile struct {
	Registry tomlRegistry `toml:"registry"`
	Models   []tomlModel  `toml:"models"`
}

// tomlRegistry maps [registry].
type tomlRegistry struct {
	Name    string `toml:"name"`
	Dialect string `toml:"dialect"`
}

// tomlModel maps [[models]].
type tomlModel struct {
	Table   string       `toml:"table"`
	Columns []tomlColumn `toml:"columns"`
	Indexes []tomlIndex  `toml:"indexes"`
}

// tomlColumn maps [[models.columns]].
type tomlColumn struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	PrimaryKey bool   `toml:"primary_key"`
	Nullable   bool   `toml:"nullable"`
	Unique     bool   `toml:"unique"`

	// Default accepts string, bool, or number from TOML; the converter
	// normalizes everything to a string.
	Default any `toml:"default"`
}

// tomlIndex maps [[models.indexes]].
type tomlIndex struct {
	Name    string   `toml:"name"`
	Columns []string `toml:"columns"`
	Unique  bool     `toml:"unique"`
}

// Registry holds the parsed model declarations.
type Registry struct {
	Name    string
	Dialect core.Dialect
	Tables  []*core.Table
}

// ParseFile opens and parses a TOML model registry.
func ParseFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open file %q: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads TOML content and returns the corresponding registry.
func Parse(r io.Reader) (*Registry, error) {
	var mf modelFile
	if _, err := toml.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("registry: decode error: %w", err)
	}

	return newConverter(&mf).convert()
}

type converter struct {
	mf         *modelFile
	seenTables map[string]bool
}

func newConverter(mf *modelFile) *converter {
	return &converter{
		mf:         mf,
		seenTables: make(map[string]bool, len(mf.Models)),
	}
}

func (c *converter) convert() (*Registry, error) {
	reg := &Registry{
		Name:   c.mf.Registry.Name,
		Tables: make([]*core.Table, 0, len(c.mf.Models)),
	}

	if raw := c.mf.Registry.Dialect; raw != "" {
		if !core.IsValidDialect(raw) {
			return nil, fmt.Errorf("registry: unsupported dialect %q; supported: %v", raw, core.SupportedDialects())
		}
		reg.Dialect = core.Dialect(strings.ToLower(raw))
	}

	for i := range c.mf.Models {
		t, err := c.convertModel(&c.mf.Models[i])
		if err != nil {
			return nil, fmt.Errorf("registry: model %q: %w", c.mf.Models[i].Table, err)
		}
		reg.Tables = append(reg.Tables, t)
	}

	return reg, nil
}

func (c *converter) convertModel(tm *tomlModel) (*core.Table, error) {
	name := strings.TrimSpace(tm.Table)
	if name == "" {
		return nil, fmt.Errorf("table name is empty")
	}
	if ddl.IsInternalTable(name) {
		return nil, fmt.Errorf("table name %q collides with the reserved %s prefix", name, ddl.InternalPrefix)
	}
	lower := strings.ToLower(name)
	if c.seenTables[lower] {
		return nil, fmt.Errorf("duplicate table %q", name)
	}
	c.seenTables[lower] = true

	if len(tm.Columns) == 0 {
		return nil, fmt.Errorf("table declares no columns")
	}

	t := &core.Table{Name: name}
	seenCols := make(map[string]bool, len(tm.Columns))
	for i := range tm.Columns {
		col, err := convertColumn(&tm.Columns[i])
		if err != nil {
			return nil, err
		}
		lc := strings.ToLower(col.Name)
		if seenCols[lc] {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		seenCols[lc] = true
		t.Columns = append(t.Columns, col)
	}

	for i := range tm.Indexes {
		idx, err := convertIndex(name, &tm.Indexes[i], t)
		if err != nil {
			return nil, err
		}
		t.Indexes = append(t.Indexes, idx)
	}

	return t, nil
}

func convertColumn(tc *tomlColumn) (*core.Column, error) {
	if strings.TrimSpace(tc.Name) == "" {
		return nil, fmt.Errorf("column name is empty")
	}
	if strings.TrimSpace(tc.Type) == "" {
		return nil, fmt.Errorf("column %q: type is empty", tc.Name)
	}

	col := &core.Column{
		Name:       tc.Name,
		Type:       core.NormalizeType(tc.Type),
		Nullable:   tc.Nullable && !tc.PrimaryKey,
		PrimaryKey: tc.PrimaryKey,
		Unique:     tc.Unique,
	}
	if tc.Default != nil {
		s := normalizeDefault(tc.Default)
		col.DefaultValue = &s
	}
	return col, nil
}

func convertIndex(table string, ti *tomlIndex, t *core.Table) (*core.Index, error) {
	if len(ti.Columns) == 0 {
		return nil, fmt.Errorf("index %q declares no columns", ti.Name)
	}
	for _, col := range ti.Columns {
		if t.FindColumn(col) == nil {
			return nil, fmt.Errorf("index %q references unknown column %q", ti.Name, col)
		}
	}

	idx := &core.Index{
		Name:    strings.TrimSpace(ti.Name),
		Columns: ti.Columns,
		Unique:  ti.Unique,
	}
	if idx.Name == "" {
		idx.Name = ddl.DefaultIndexName(table, ti.Columns)
	}
	return idx, nil
}

func normalizeDefault(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// TargetSnapshot materializes the registry as a snapshot for the dialect the
// engine is migrating. Index names missing from the model get deterministic
// generated names so repeated plans stay identical.
func (r *Registry) TargetSnapshot(dialect core.Dialect) *core.Snapshot {
	snap := core.NewSnapshot(dialect)
	for _, t := range r.Tables {
		snap.Tables[t.Name] = t
	}
	return snap
}
