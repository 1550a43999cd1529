package querycapture

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// maxParams bounds how many '&'-separated fragments are read.
	maxParams = 1000
	// maxDepth bounds bracket nesting; deeper segments stay part of the last key.
	maxDepth = 5
)

// Param is one top-level decoded parameter. Value is a string, a []any or a
// map[string]any depending on the bracket encoding used.
type Param struct {
	Key   string
	Value any
}

var numericEntity = regexp.MustCompile(`&#(?:([0-9]+)|[xX]([0-9a-fA-F]+));`)

// Parse decodes raw best-effort. Fragments that fail to percent-decode keep
// their raw text; fragments with an empty key are dropped. Parameters are
// returned in order of first appearance.
func Parse(raw string) []Param {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}

	root := make(map[string]any)
	var order []string

	parts := strings.SplitN(raw, "&", maxParams+1)
	if len(parts) > maxParams {
		parts = parts[:maxParams]
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		var rawKey, rawVal string
		// a[b]=c=d splits after "]=" so '=' inside brackets stays in the key
		pos := strings.Index(part, "]=")
		if pos == -1 {
			pos = strings.Index(part, "=")
		} else {
			pos++
		}
		if pos == -1 {
			rawKey = part
		} else {
			rawKey, rawVal = part[:pos], part[pos+1:]
		}

		key := decodeComponent(rawKey)
		if key == "" {
			continue
		}
		val := decodeEntities(decodeComponent(rawVal))

		segments := splitKey(key)
		if len(segments) == 0 || segments[0] == "" {
			continue
		}
		if _, seen := root[segments[0]]; !seen {
			order = append(order, segments[0])
		}
		assign(root, segments, val)
	}

	params := make([]Param, 0, len(order))
	for _, k := range order {
		params = append(params, Param{Key: k, Value: root[k]})
	}
	return params
}

func decodeComponent(s string) string {
	if s == "" {
		return s
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return decoded
}

// decodeEntities replaces decimal and hex numeric character references in
// a single pass, so a decoded '&' never starts another reference.
// References to invalid code points are left untouched.
func decodeEntities(s string) string {
	if !strings.Contains(s, "&#") {
		return s
	}
	return numericEntity.ReplaceAllStringFunc(s, func(m string) string {
		if m[2] == 'x' || m[2] == 'X' {
			return entityRune(m, m[3:len(m)-1], 16)
		}
		return entityRune(m, m[2:len(m)-1], 10)
	})
}

func entityRune(match, digits string, base int) string {
	n, err := strconv.ParseInt(digits, base, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return match
	}
	return string(rune(n))
}

// splitKey turns "a[b][]" into ["a", "b", ""]. A key opening with a bracket
// uses the first bracket's content as its parent; an unterminated bracket is
// literal text.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open == -1 || !strings.Contains(key[open:], "]") {
		return []string{key}
	}

	var segments []string
	if open > 0 {
		segments = append(segments, key[:open])
	}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' && len(segments) <= maxDepth {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			break
		}
		segments = append(segments, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		if len(segments) == 0 {
			return []string{key}
		}
		segments[len(segments)-1] += rest
	}
	return segments
}

// assign stores val under the segment path. Repeated plain keys and "[]" or
// numeric segments build arrays; named segments build maps. A later shape
// conflicting with an earlier one replaces it.
func assign(node map[string]any, segments []string, val string) {
	head := segments[0]
	if len(segments) == 1 {
		switch existing := node[head].(type) {
		case nil:
			node[head] = val
		case string:
			node[head] = []any{existing, val}
		case []any:
			node[head] = append(existing, val)
		default:
			node[head] = val
		}
		return
	}

	next := segments[1]
	if next == "" || isIndex(next) {
		arr, _ := node[head].([]any)
		if len(segments) == 2 {
			node[head] = append(arr, val)
			return
		}
		child := make(map[string]any)
		assign(child, segments[2:], val)
		node[head] = append(arr, child)
		return
	}

	child, ok := node[head].(map[string]any)
	if !ok {
		child = make(map[string]any)
		node[head] = child
	}
	assign(child, segments[1:], val)
}

func isIndex(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 20
}
