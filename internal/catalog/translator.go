package catalog

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/sells-group/census-geo/internal/geoerr"
)

// Translation is one input token and what it maps to. Value is nil when
// the token is unknown to the dictionary.
type Translation struct {
	Key   string
	Value *string
}

// Translations is an ordered batch lookup result. It marshals as a JSON
// object whose keys keep the input order.
type Translations []Translation

// Get returns the translation for key.
func (t Translations) Get(key string) (string, bool) {
	for _, tr := range t {
		if tr.Key == key && tr.Value != nil {
			return *tr.Value, true
		}
	}
	return "", false
}

// MarshalJSON implements json.Marshaler.
func (t Translations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tr := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tr.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(tr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AliasToVariable maps each alias to its variable code.
func (c *Catalog) AliasToVariable(aliases []string) (Translations, error) {
	if len(aliases) == 0 {
		return nil, geoerr.New(geoerr.InvalidInput, "invalid list of aliases, make sure multiple aliases are comma separated")
	}
	out := make(Translations, 0, len(aliases))
	for _, a := range aliases {
		tr := Translation{Key: a}
		if entry, ok := c.aliases[a]; ok {
			v := entry.Variable
			tr.Value = &v
		}
		out = append(out, tr)
	}
	return out, nil
}

// VariableToAlias maps each variable code to its alias.
func (c *Catalog) VariableToAlias(vars []string) (Translations, error) {
	if len(vars) == 0 {
		return nil, geoerr.New(geoerr.InvalidInput, "invalid list of variables, make sure multiple variables are comma separated")
	}
	out := make(Translations, 0, len(vars))
	for _, v := range vars {
		tr := Translation{Key: v}
		if alias, ok := c.byVariable[v]; ok {
			tr.Value = &alias
		}
		out = append(out, tr)
	}
	return out, nil
}

// ResolveForAPIYear turns an alias into the variable code to query for
// (api, year). Tokens that are not aliases are returned unchanged.
func (c *Catalog) ResolveForAPIYear(token, api string, year int) (string, error) {
	entry, ok := c.aliases[token]
	if !ok {
		return token, nil
	}
	if !entry.ValidFor(api, year) {
		return "", geoerr.New(geoerr.UnsupportedAliasForDataset,
			"alias %q is not available for api %q in %d", token, api, year)
	}
	return entry.Variable, nil
}

// IsNormalizable reports whether alias is known and flagged normalizable.
func (c *Catalog) IsNormalizable(alias string) bool {
	entry, ok := c.aliases[alias]
	return ok && entry.Normalizable
}

// Alias returns the dictionary entry for name.
func (c *Catalog) Alias(name string) (AliasEntry, bool) {
	entry, ok := c.aliases[name]
	return entry, ok
}

// Aliases returns the whole dictionary sorted by alias name.
func (c *Catalog) Aliases() []AliasEntry {
	out := make([]AliasEntry, 0, len(c.aliases))
	for _, entry := range c.aliases {
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b AliasEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
