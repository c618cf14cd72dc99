package ddl

import (
	"slices"
	"strconv"
	"strings"
)

// FormatDefault renders a column default for embedding in DDL. Keywords and
// numeric literals pass through unquoted; everything else is quoted with the
// dialect's string quoter.
func FormatDefault(v string, quote func(string) string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "''"
	}

	upper := strings.ToUpper(v)
	keywords := []string{"NULL", "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME", "NOW()", "TRUE", "FALSE"}
	if slices.Contains(keywords, upper) {
		return upper
	}

	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}

	if strings.ContainsAny(v, "()") {
		return v
	}

	return quote(v)
}

// QuoteSingle escapes a value into a single-quoted SQL string literal.
func QuoteSingle(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// QuoteColumns quotes and joins a column list: (a, b, c).
func QuoteColumns(cols []string, quoteIdent func(string) string) string {
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		quoted = append(quoted, quoteIdent(c))
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
