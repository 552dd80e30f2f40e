// Package schema holds the fixed list of PGN header tags kept in the output table.
package schema

// fields is the ordered set of recognized tags. The order is the output
// column order and never changes during a run.
var fields = [...]string{
	"Event",
	"White",
	"Black",
	"Result",
	"UTCDate",
	"UTCTime",
	"WhiteElo",
	"BlackElo",
	"Opening",
	"TimeControl",
	"Termination",
}

// Fields returns a copy of the recognized tag names in column order.
func Fields() []string {
	out := make([]string, len(fields))
	copy(out, fields[:])
	return out
}

// Len returns the number of columns.
func Len() int {
	return len(fields)
}

// Name returns the tag name for column i.
func Name(i int) string {
	return fields[i]
}

// Index returns the column position of a header tag.
// The comparison does not allocate.
func Index(key []byte) (int, bool) {
	for i, f := range fields {
		if string(key) == f {
			return i, true
		}
	}
	return -1, false
}

// IsRecognized reports whether a header tag is kept in the output.
func IsRecognized(key []byte) bool {
	_, ok := Index(key)
	return ok
}
