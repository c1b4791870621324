// Package jsonextract pulls JSON values out of noisy process output.
package jsonextract

import (
	"encoding/json"
)

// Values returns every top-level balanced JSON object or array in text, in
// order of appearance. Bracketed text that is not valid JSON is skipped.
func Values(text string) []json.RawMessage {
	var out []json.RawMessage
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end, ok := matchClose(text, i)
		if !ok {
			continue
		}
		candidate := text[i : end+1]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		out = append(out, json.RawMessage(candidate))
		i = end
	}
	return out
}

// matchClose returns the index of the bracket closing the one at start.
func matchClose(text string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Result picks an operation result from headless output: the last object in
// stdout, else the first value in stdout, then the same in stderr.
func Result(stdout, stderr string) (json.RawMessage, bool) {
	for _, text := range []string{stdout, stderr} {
		values := Values(text)
		for i := len(values) - 1; i >= 0; i-- {
			if values[i][0] == '{' {
				return values[i], true
			}
		}
		if len(values) > 0 {
			return values[0], true
		}
	}
	return nil, false
}
