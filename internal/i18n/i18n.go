// Package i18n resolves the wizard's user-facing strings from YAML message
// catalogues, one file per locale.
package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

// Fallback is the locale every key must exist in.
var Fallback = language.English

var placeholder = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// Catalog holds the messages of every loaded locale.
type Catalog struct {
	messages map[language.Tag]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	md       goldmark.Markdown
}

// Load reads the catalogues compiled into the binary.
func Load() (*Catalog, error) {
	return LoadFS(embedded, "locales")
}

// LoadFS reads every <locale>.yaml file in dir. The fallback locale is
// required; other locales may be partial.
func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{
		messages: map[language.Tag]map[string]string{},
		md:       goldmark.New(),
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		tag, err := language.Parse(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("locale file %s: %w", name, err)
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var m map[string]string
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		c.messages[tag] = m
	}
	if _, ok := c.messages[Fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %s not loaded", Fallback)
	}

	// The matcher falls back to its first tag.
	c.tags = append(c.tags, Fallback)
	for tag := range c.messages {
		if tag != Fallback {
			c.tags = append(c.tags, tag)
		}
	}
	slices.SortFunc(c.tags[1:], func(a, b language.Tag) int {
		return strings.Compare(a.String(), b.String())
	})
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Supported lists the loaded locales, fallback first.
func (c *Catalog) Supported() []language.Tag {
	return slices.Clone(c.tags)
}

// Match picks the best supported locale for an Accept-Language header.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return Fallback
	}
	_, idx, conf := c.matcher.Match(prefs...)
	if conf == language.No {
		return Fallback
	}
	return c.tags[idx]
}

// T returns the message for key in locale, then in the fallback locale, and
// finally the key itself.
func (c *Catalog) T(locale, key string) string {
	if tag, err := language.Parse(locale); err == nil {
		if m, ok := c.messages[tag]; ok {
			if v, ok := m[key]; ok {
				return v
			}
		}
	}
	if v, ok := c.messages[Fallback][key]; ok {
		return v
	}
	return key
}

// Format resolves key and substitutes {name} placeholders from params.
// Placeholders without a param are left as written.
func (c *Catalog) Format(locale, key string, params map[string]string) string {
	return substitute(c.T(locale, key), params)
}

// Markdown formats key and renders it as HTML. Raw HTML in messages is not
// passed through.
func (c *Catalog) Markdown(locale, key string, params map[string]string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(c.Format(locale, key, params)), &buf); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return template.HTML(buf.String()), nil
}

func substitute(msg string, params map[string]string) string {
	if len(params) == 0 {
		return msg
	}
	return placeholder.ReplaceAllStringFunc(msg, func(m string) string {
		if v, ok := params[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}
