package search

import (
	"bytes"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Providers disagree on the JSON type of the same logical field. The types
// below accept every shape seen in the wild and reduce it to one Go value.

// flexString accepts a string, number or bool.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	*f = flexString(rawToString(b))
	return nil
}

// flexInt accepts a number or a numeric string. Anything else decodes to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := rawToString(b)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

// flexBool accepts a bool or "true"/"false"/"1"/"0".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	v, _ := strconv.ParseBool(strings.ToLower(rawToString(b)))
	*f = flexBool(v)
	return nil
}

// artistNames accepts "A, B", ["A","B"], [{"name":"A"}] or
// {"primary":[{"name":"A"}], ...}.
type artistNames string

func (a *artistNames) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		*a = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*a = artistNames(s)
	case '[':
		*a = artistNames(strings.Join(namesFromList(b), ", "))
	case '{':
		var groups struct {
			Primary  json.RawMessage `json:"primary"`
			Featured json.RawMessage `json:"featured"`
			All      json.RawMessage `json:"all"`
		}
		if err := json.Unmarshal(b, &groups); err != nil {
			return nil
		}
		for _, raw := range []json.RawMessage{groups.Primary, groups.All, groups.Featured} {
			if names := namesFromList(raw); len(names) > 0 {
				*a = artistNames(strings.Join(names, ", "))
				return nil
			}
		}
	}
	return nil
}

func namesFromList(b []byte) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	names := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var name string
		if len(item) > 0 && item[0] == '"' {
			_ = json.Unmarshal(item, &name)
		} else {
			var obj struct {
				Name flexString `json:"name"`
			}
			_ = json.Unmarshal(item, &obj)
			name = string(obj.Name)
		}
		name = strings.TrimSpace(html.UnescapeString(name))
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// qualityURL accepts a flat URL or a list of {quality, url|link} variants and
// keeps the highest-quality one.
type qualityURL string

type variant struct {
	Quality flexString `json:"quality"`
	URL     flexString `json:"url"`
	Link    flexString `json:"link"`
}

func (v variant) href() string {
	if v.URL != "" {
		return string(v.URL)
	}
	return string(v.Link)
}

func (q *qualityURL) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		_ = json.Unmarshal(b, &s)
		*q = qualityURL(s)
	case '[':
		var variants []variant
		if err := json.Unmarshal(b, &variants); err != nil {
			return nil
		}
		*q = qualityURL(bestVariant(variants))
	case '{':
		var v variant
		if err := json.Unmarshal(b, &v); err == nil {
			*q = qualityURL(v.href())
		}
	}
	return nil
}

var qualityNumber = regexp.MustCompile(`\d+`)

// qualityRank orders "500x500" and "320kbps" style labels numerically.
// Unlabelled variants rank by position.
func qualityRank(label string) int {
	m := qualityNumber.FindString(label)
	if m == "" {
		return -1
	}
	n, _ := strconv.Atoi(m)
	return n
}

func bestVariant(variants []variant) string {
	type ranked struct {
		rank, pos int
		href      string
	}
	var candidates []ranked
	for i, v := range variants {
		if h := v.href(); h != "" {
			candidates = append(candidates, ranked{rank: qualityRank(string(v.Quality)), pos: i, href: h})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank > candidates[j].rank
		}
		return candidates[i].pos > candidates[j].pos
	})
	return candidates[0].href
}

func rawToString(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if b[0] == '{' || b[0] == '[' {
		return ""
	}
	return string(b)
}

// fieldProbe is an ordered list of alternative field names for one logical
// field. The first present, non-empty field wins.
type fieldProbe []string

// object is a decoded JSON object with lazily decoded members.
type object map[string]json.RawMessage

func (o object) raw(p fieldProbe) (json.RawMessage, bool) {
	for _, name := range p {
		v, ok := o[name]
		if !ok {
			continue
		}
		t := bytes.TrimSpace(v)
		if len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`)) || bytes.Equal(t, []byte("[]")) {
			continue
		}
		return v, true
	}
	return nil, false
}

func (o object) str(p fieldProbe) string {
	raw, ok := o.raw(p)
	if !ok {
		return ""
	}
	var s flexString
	_ = s.UnmarshalJSON(raw)
	return html.UnescapeString(string(s))
}

func (o object) integer(p fieldProbe) int {
	raw, ok := o.raw(p)
	if !ok {
		return 0
	}
	var n flexInt
	_ = n.UnmarshalJSON(raw)
	return int(n)
}

func (o object) boolean(p fieldProbe) bool {
	raw, ok := o.raw(p)
	if !ok {
		return false
	}
	var v flexBool
	_ = v.UnmarshalJSON(raw)
	return bool(v)
}

func (o object) artists(p fieldProbe) string {
	raw, ok := o.raw(p)
	if !ok {
		return ""
	}
	var a artistNames
	_ = a.UnmarshalJSON(raw)
	return html.UnescapeString(string(a))
}

func (o object) url(p fieldProbe) string {
	raw, ok := o.raw(p)
	if !ok {
		return ""
	}
	var u qualityURL
	_ = u.UnmarshalJSON(raw)
	return string(u)
}

// envelope finds the result list in a response body by trying each path in
// order. Paths are dot separated ("data.results").
func envelope(body []byte, paths ...string) ([]object, bool) {
	for _, path := range paths {
		cur := json.RawMessage(body)
		found := true
		for _, part := range strings.Split(path, ".") {
			var o object
			if err := json.Unmarshal(cur, &o); err != nil {
				found = false
				break
			}
			next, ok := o[part]
			if !ok {
				found = false
				break
			}
			cur = next
		}
		if !found {
			continue
		}
		var items []object
		if err := json.Unmarshal(cur, &items); err == nil {
			return items, true
		}
	}
	return nil, false
}
