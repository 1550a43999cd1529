package querycapture

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ettle/strcase"
)

// keyCaser splits words on delimiters, case changes and the boundary after
// a run of digits, so "foo2bar" and "foo2Bar" fold together.
var keyCaser = strcase.NewCaser(false, nil, strcase.NewSplitFn(
	[]rune{'_', '-', '.'},
	strcase.SplitCase,
	strcase.SplitAcronym,
	strcase.SplitAfterNumber,
))

// Normalize folds a parameter name into its canonical camelCase form.
// Delimiters (-, _, space, .) and case boundaries separate words; word case
// does not matter, so "Foo-Bar", "foo-bar" and "FOO_BAR" all become "fooBar".
// A letter following a digit starts a new word: "foo2bar" becomes "foo2Bar".
func Normalize(key string) string {
	return keyCaser.ToCamel(strings.TrimSpace(key))
}

// Stringify renders a decoded value for string-only storage: scalars as-is,
// arrays comma-joined, maps as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
