package amcp

import "strings"

// ParseArgs parses a parameter list token of the form (KEY1=VAL1 KEY2="quoted val" ...) into a map
// keyed by upper-cased names. A key without "=" maps to an empty string. Values may be quoted to
// contain spaces and support the same escapes as Tokenize. Malformed input is parsed as far as it
// goes: an unterminated quote keeps whatever was accumulated.
func ParseArgs(token string) map[string]string {
	args := make(map[string]string)

	body := strings.TrimPrefix(token, "(")
	body = strings.TrimSuffix(body, ")")

	var (
		name    strings.Builder
		value   strings.Builder
		inValue bool
		inQuote bool
		escaped bool
	)

	store := func() {
		if name.Len() > 0 {
			args[strings.ToUpper(name.String())] = value.String()
		}
		name.Reset()
		value.Reset()
		inValue = false
	}

	for _, r := range body {
		if escaped {
			escaped = false
			switch r {
			case '\\', '"':
				value.WriteRune(r)
			case 'n':
				value.WriteRune('\n')
			}
			continue
		}

		if !inValue {
			switch r {
			case '=':
				inValue = true
			case ' ':
				store()
			default:
				name.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '\\':
			escaped = true
		case r == '"':
			if inQuote {
				inQuote = false
				store()
				continue
			}
			inQuote = true
		case r == ' ' && !inQuote:
			store()
		default:
			value.WriteRune(r)
		}
	}

	store()

	return args
}
