package host

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
)

type stmtKind int

const (
	kindOther stmtKind = iota
	kindQuery
	kindDML
	kindDDL
	kindBegin
	kindCommit
	kindRollback
)

var stmtKinds = map[string]stmtKind{
	"SELECT":   kindQuery,
	"WITH":     kindQuery,
	"VALUES":   kindQuery,
	"PRAGMA":   kindQuery,
	"EXPLAIN":  kindQuery,
	"INSERT":   kindDML,
	"UPDATE":   kindDML,
	"DELETE":   kindDML,
	"REPLACE":  kindDML,
	"CREATE":   kindDDL,
	"DROP":     kindDDL,
	"ALTER":    kindDDL,
	"REINDEX":  kindDDL,
	"ANALYZE":  kindDDL,
	"BEGIN":    kindBegin,
	"COMMIT":   kindCommit,
	"END":      kindCommit,
	"ROLLBACK": kindRollback,
}

var returningInto = regexp.MustCompile(`(?is)\bRETURNING\b.+?(\bINTO\b\s*(?::\w+\s*,\s*)*:\w+)\s*;?\s*$`)

var bindName = regexp.MustCompile(`:(\w+)`)

// parsedSQL is a statement rewritten for SQLite: named placeholders become
// numbered ones and a trailing INTO clause of RETURNING is split off.
type parsedSQL struct {
	text      string
	kind      stmtKind
	names     []string // distinct input bind names, in ?N order
	into      []string // RETURNING ... INTO output names
	returning bool
}

func normalizeBindName(name string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), ":"))
}

func parseSQL(query string) parsedSQL {
	p := parsedSQL{kind: statementKind(query)}
	if m := returningInto.FindStringSubmatchIndex(query); m != nil && p.kind == kindDML {
		for _, n := range bindName.FindAllStringSubmatch(query[m[2]:m[3]], -1) {
			p.into = append(p.into, normalizeBindName(n[1]))
		}
		query = query[:m[2]] + query[m[3]:]
	}
	p.returning = p.kind == kindDML && len(p.into) > 0
	p.text, p.names = rewriteBinds(query)
	return p
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '#' ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// rewriteBinds replaces :name placeholders outside of literals and comments
// with ?N, numbering distinct names in order of first appearance.
func rewriteBinds(query string) (string, []string) {
	var b strings.Builder
	var names []string
	index := make(map[string]int)

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(query) {
				if query[j] == c {
					if j+1 < len(query) && query[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := min(j+1, len(query))
			b.WriteString(query[i:end])
			i = end - 1
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i
			} else {
				end++
			}
			b.WriteString(query[i : i+end])
			i += end - 1
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query) - i
			} else {
				end += 4
			}
			b.WriteString(query[i : i+end])
			i += end - 1
		case c == ':' && i+1 < len(query) && isIdentByte(query[i+1]) && (i == 0 || query[i-1] != ':'):
			j := i + 1
			for j < len(query) && isIdentByte(query[j]) {
				j++
			}
			name := normalizeBindName(query[i+1 : j])
			n, ok := index[name]
			if !ok {
				names = append(names, name)
				n = len(names)
				index[name] = n
			}
			fmt.Fprintf(&b, "?%d", n)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), names
}

// statementKind classifies a statement by its first keyword.
func statementKind(query string) stmtKind {
	q := strings.TrimLeft(query, " \t\r\n(")
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			if i := strings.IndexByte(q, '\n'); i >= 0 {
				q = strings.TrimLeft(q[i+1:], " \t\r\n(")
				continue
			}
			return kindOther
		case strings.HasPrefix(q, "/*"):
			if i := strings.Index(q, "*/"); i >= 0 {
				q = strings.TrimLeft(q[i+2:], " \t\r\n(")
				continue
			}
			return kindOther
		}
		break
	}
	end := strings.IndexFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(q)
	}
	return stmtKinds[strings.ToUpper(q[:end])]
}

const sqlIDAlphabet = "0123456789abcdfghjkmnpqrstuvwxyz"

// sqlID computes the server SQL identifier of a statement text: the low 64
// bits of the MD5 digest of the NUL-terminated text in base 32.
func sqlID(query string) string {
	sum := md5.Sum([]byte(query + "\x00"))
	msb := binary.LittleEndian.Uint32(sum[8:12])
	lsb := binary.LittleEndian.Uint32(sum[12:16])
	n := uint64(msb)<<32 | uint64(lsb)

	id := make([]byte, 13)
	for i := len(id) - 1; i >= 0; i-- {
		id[i] = sqlIDAlphabet[n&31]
		n >>= 5
	}
	return string(id)
}
