package recstore

import (
	"fmt"
	"strconv"
	"strings"
)

// format of a stored line:
// <name> <last_name> <email> <key>\n
// a field is written Go-quoted if it has a space, tab, newline or
// starts with '"', so plain values look exactly like the old
// space-joined format

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if s[0] == '"' {
		return true
	}
	return strings.ContainsAny(s, " \t\r\n")
}

func appendField(sb *strings.Builder, s string) {
	if needsQuoting(s) {
		sb.WriteString(strconv.Quote(s))
		return
	}
	sb.WriteString(s)
}

// MarshalLine serializes an entry to a single newline-terminated line
func MarshalLine(e *Entry) string {
	var sb strings.Builder
	appendField(&sb, e.Name)
	sb.WriteByte(' ')
	appendField(&sb, e.LastName)
	sb.WriteByte(' ')
	appendField(&sb, e.Email)
	sb.WriteByte(' ')
	appendField(&sb, e.Key)
	sb.WriteByte('\n')
	return sb.String()
}

// quotedField returns the unquoted value and length of a Go-quoted field
// at the start of s. ok is false if s doesn't start with a complete quoted
// string followed by a space or the end of line.
func quotedField(s string) (v string, n int, ok bool) {
	quoted, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", 0, false
	}
	n = len(quoted)
	if n < len(s) && s[n] != ' ' {
		return "", 0, false
	}
	v, err = strconv.Unquote(quoted)
	if err != nil {
		return "", 0, false
	}
	return v, n, true
}

// splitFields splits a line into space-separated fields, unquoting
// the quoted ones. Runs of spaces are treated as one separator.
// A field that starts with '"' but isn't validly quoted was written
// unquoted by older versions and is taken as is.
func splitFields(line string) []string {
	var fields []string
	s := line
	for len(s) > 0 {
		if s[0] == ' ' {
			s = s[1:]
			continue
		}
		if s[0] == '"' {
			if v, n, ok := quotedField(s); ok {
				fields = append(fields, v)
				s = s[n:]
				continue
			}
		}
		idx := strings.IndexByte(s, ' ')
		if idx < 0 {
			fields = append(fields, s)
			break
		}
		fields = append(fields, s[:idx])
		s = s[idx:]
	}
	return fields
}

// ParseLine parses a stored line (without the trailing newline) into e.
// Lines written by older versions joined fields with spaces without
// quoting. For those with more than 4 fields the first field is the name,
// the last two are email and key and everything in between is the last name.
func ParseLine(line string, e *Entry) error {
	line = strings.TrimSuffix(line, "\r")
	fields := splitFields(line)
	n := len(fields)
	if n < 4 {
		return fmt.Errorf("invalid line, expected 4 fields, got %d: %s", n, line)
	}
	e.Name = fields[0]
	e.LastName = strings.Join(fields[1:n-2], " ")
	e.Email = fields[n-2]
	e.Key = fields[n-1]
	return nil
}
