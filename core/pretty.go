package core

import (
	"strings"
)

// clauses start a new line, indented by the subquery depth
var clauses = map[string]bool{
	"SELECT":   true,
	"FROM":     true,
	"WHERE":    true,
	"UNION":    true,
	"ORDER BY": true,
	"GROUP BY": true,
	"LIMIT":    true,
}

// PrettySQL formats generated SQL for logs and the command line. Every
// clause starts on its own line and subqueries are indented. Quoted
// strings are copied unchanged.
func PrettySQL(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + len(query)/4)

	depth := 0
	space := false
	n := len(query)

	newline := func() {
		if sb.Len() != 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Repeat("  ", depth))
		space = false
	}

	for i := 0; i < n; i++ {
		ch := query[i]

		switch {
		case ch == '\'' || ch == '`' || ch == '"':
			if space {
				sb.WriteByte(' ')
				space = false
			}
			j := i + 1
			for j < n {
				if query[j] == ch {
					// doubled quotes escape
					if j+1 < n && query[j+1] == ch {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= n {
				j = n - 1
			}
			sb.WriteString(query[i : j+1])
			i = j

		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			space = sb.Len() != 0

		case ch == '(':
			if space {
				sb.WriteByte(' ')
				space = false
			}
			sb.WriteByte(ch)
			depth++

		case ch == ')':
			if depth > 0 {
				depth--
			}
			sb.WriteByte(ch)

		case isWordChar(ch) && (i == 0 || !isWordChar(query[i-1])):
			j := i
			for j < n && isWordChar(query[j]) {
				j++
			}
			word := strings.ToUpper(query[i:j])

			if word == "ORDER" || word == "GROUP" {
				if k := skipSpace(query, j); k+2 <= n && strings.EqualFold(query[k:k+2], "BY") &&
					(k+2 == n || !isWordChar(query[k+2])) {
					newline()
					sb.WriteString(word + " BY")
					i = k + 1
					continue
				}
			}
			if clauses[word] {
				newline()
				sb.WriteString(word)
				i = j - 1
				continue
			}
			if space {
				sb.WriteByte(' ')
				space = false
			}
			sb.WriteString(query[i:j])
			i = j - 1

		default:
			if space {
				sb.WriteByte(' ')
				space = false
			}
			sb.WriteByte(ch)
		}
	}
	return strings.TrimSpace(sb.String())
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
