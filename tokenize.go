package amcp

import "strings"

// Tokenize splits a raw command line into tokens.
//
// Tokens are separated by spaces outside of quotes and parameter lists. A backslash escapes the
// next character: \\ and \" produce the character itself, \n produces a newline and any other
// escaped character is dropped. A quoted section always produces a token, even when empty. An
// unquoted "(" opens a parameter list that is kept verbatim, parentheses included, until the
// matching ")" closes it.
func Tokenize(line string) []string {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
		escaped bool
		nesting int
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range line {
		if nesting > 0 {
			// Parameter lists are handed to ParseArgs untouched, so escapes and quotes are only
			// tracked here to find the closing parenthesis.
			current.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inQuote = !inQuote
			case inQuote:
			case r == '(':
				nesting++
			case r == ')':
				nesting--
				if nesting == 0 {
					tokens = append(tokens, current.String())
					current.Reset()
				}
			}
			continue
		}

		if escaped {
			escaped = false
			switch r {
			case '\\', '"':
				current.WriteRune(r)
			case 'n':
				current.WriteRune('\n')
			}
			continue
		}

		switch {
		case r == '\\':
			escaped = true
		case r == '"':
			if inQuote {
				tokens = append(tokens, current.String())
				current.Reset()
				inQuote = false
				continue
			}
			flush()
			inQuote = true
		case inQuote:
			current.WriteRune(r)
		case r == '(':
			nesting++
			current.WriteRune(r)
		case r == ' ':
			flush()
		default:
			current.WriteRune(r)
		}
	}

	flush()

	return tokens
}
