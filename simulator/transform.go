package simulator

import "strings"

// desugarAsync blanks out async and await keywords so a Functions source can
// run on a runtime without async function support. The host side of
// Functions.makeHttpRequest is synchronous, so awaiting its result is a
// no-op. Keywords inside strings and comments are left alone.
//
// Expressions inside template literal substitutions are not rewritten.
func desugarAsync(src string) string {
	var out strings.Builder
	out.Grow(len(src))

	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = n - i
			}
			out.WriteString(src[i : i+end])
			i += end
		case c == '/' && i+1 < n && src[i+1] == '*':
			end := n
			if j := strings.Index(src[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
			out.WriteString(src[i:end])
			i = end
		case c == '"' || c == '\'' || c == '`':
			end := skipQuoted(src, i)
			out.WriteString(src[i:end])
			i = end
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			member := i > 0 && src[i-1] == '.'
			if !member && (word == "await" || (word == "async" && isAsyncModifier(src[j:]))) {
				out.WriteString(strings.Repeat(" ", len(word)))
			} else {
				out.WriteString(word)
			}
			i = j
		case isDigit(c):
			// Numeric literals like 1e5 must not be read as identifiers.
			j := i
			for j < n && (isIdentPart(src[j]) || src[j] == '.') {
				j++
			}
			out.WriteString(src[i:j])
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipQuoted returns the index just past the string literal starting at i.
func skipQuoted(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			if quote != '`' {
				return j
			}
		}
	}
	return len(src)
}

// isAsyncModifier reports whether "async" is followed, on the same line, by a
// function, a parameter list, or an arrow parameter / method name.
func isAsyncModifier(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return false
	}
	return rest[0] == '(' || isIdentStart(rest[0])
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
