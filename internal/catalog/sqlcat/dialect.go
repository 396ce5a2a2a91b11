package sqlcat

import (
	"strconv"
	"strings"

	"ecommetl/internal/ddl"
)

// Placeholder styles.
const (
	Question = iota // ?
	Dollar          // $1
	AtP             // @p1
)

// Dialect describes one SQL backend.
type Dialect struct {
	ddl.Dialect

	// Placeholder is one of Question, Dollar, AtP.
	Placeholder int
}

// Rebind rewrites the "?" placeholders in q into the dialect's style.
// Queries in this package never contain a literal "?".
func (d Dialect) Rebind(q string) string {
	if d.Placeholder == Question {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] != '?' {
			b.WriteByte(q[i])
			continue
		}
		n++
		if d.Placeholder == Dollar {
			b.WriteByte('$')
		} else {
			b.WriteString("@p")
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
