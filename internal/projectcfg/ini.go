package projectcfg

import (
	"strconv"
	"strings"
)

// document is a project file split into lines. Edits are line based so that
// everything outside the touched lines is preserved byte for byte.
type document struct {
	lines    []string
	trailing bool
}

func parseDocument(content string) document {
	doc := document{trailing: strings.HasSuffix(content, "\n")}
	if content != "" {
		doc.lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}
	return doc
}

func (d document) String() string {
	out := strings.Join(d.lines, "\n")
	if d.trailing {
		out += "\n"
	}
	return out
}

func sectionName(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// section returns the header index and the exclusive end of the section body,
// or -1 when the section is missing.
func (d document) section(name string) (int, int) {
	header := -1
	for i, line := range d.lines {
		if sec, ok := sectionName(line); ok {
			if header >= 0 {
				return header, i
			}
			if sec == name {
				header = i
			}
		}
	}
	if header < 0 {
		return -1, -1
	}
	return header, len(d.lines)
}

func keyOf(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == ';' || trimmed[0] == '#' {
		return "", "", false
	}
	eq := strings.IndexByte(trimmed, '=')
	if eq <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(trimmed[:eq]), strings.TrimSpace(trimmed[eq+1:]), true
}

func (d document) find(section, key string) int {
	header, end := d.section(section)
	if header < 0 {
		return -1
	}
	for i := header + 1; i < end; i++ {
		if k, _, ok := keyOf(d.lines[i]); ok && k == key {
			return i
		}
	}
	return -1
}

// Lookup returns the unquoted value of key in section.
func Lookup(content, section, key string) (string, bool) {
	doc := parseDocument(content)
	idx := doc.find(section, key)
	if idx < 0 {
		return "", false
	}
	_, value, _ := keyOf(doc.lines[idx])
	if unquoted, err := strconv.Unquote(value); err == nil {
		return unquoted, true
	}
	return value, true
}

// addEntry adds key=value to the autoload section, creating the section at
// the end of the file when missing. It is a no-op when key already exists.
func addEntry(content, key, value string) (string, bool) {
	doc := parseDocument(content)
	if doc.find(AutoloadSection, key) >= 0 {
		return content, false
	}
	entry := key + "=" + value
	header, end := doc.section(AutoloadSection)
	if header < 0 {
		if len(doc.lines) > 0 {
			doc.lines = append(doc.lines, "")
		}
		doc.lines = append(doc.lines, "["+AutoloadSection+"]", "", entry)
		doc.trailing = true
		return doc.String(), true
	}
	insert := header + 1
	for i := end - 1; i > header; i-- {
		if !isBlank(doc.lines[i]) {
			insert = i + 1
			break
		}
	}
	if insert == header+1 {
		// Empty section: keep the conventional blank line after the header.
		if insert < end && isBlank(doc.lines[insert]) {
			insert++
		}
	}
	lines := make([]string, 0, len(doc.lines)+1)
	lines = append(lines, doc.lines[:insert]...)
	lines = append(lines, entry)
	lines = append(lines, doc.lines[insert:]...)
	doc.lines = lines
	return doc.String(), true
}

// removeEntry deletes key from the autoload section. When that leaves the
// last section of the file without entries, the section is dropped together
// with the blank line before it, which restores a file addEntry extended.
func removeEntry(content, key string) (string, bool) {
	doc := parseDocument(content)
	idx := doc.find(AutoloadSection, key)
	if idx < 0 {
		return content, false
	}
	doc.lines = append(doc.lines[:idx:idx], doc.lines[idx+1:]...)

	header, end := doc.section(AutoloadSection)
	if end < len(doc.lines) {
		return doc.String(), true
	}
	for i := header + 1; i < end; i++ {
		if !isBlank(doc.lines[i]) {
			return doc.String(), true
		}
	}
	start := header
	if start > 0 && isBlank(doc.lines[start-1]) {
		start--
	}
	doc.lines = doc.lines[:start]
	if len(doc.lines) == 0 {
		return "", true
	}
	return doc.String(), true
}

// Keys lists the keys of section in file order.
func Keys(content, section string) []string {
	doc := parseDocument(content)
	header, end := doc.section(section)
	if header < 0 {
		return nil
	}
	var keys []string
	for i := header + 1; i < end; i++ {
		if k, _, ok := keyOf(doc.lines[i]); ok {
			keys = append(keys, k)
		}
	}
	return keys
}
