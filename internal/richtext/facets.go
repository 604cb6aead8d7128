// Package richtext finds links and mentions in post text and reports them
// as UTF-8 byte ranges, the offsets the AT Protocol facet index expects.
package richtext

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

var (
	reURL = regexp.MustCompile(`https?://[^\s<>"]+`)
	// A mention starts the text or follows whitespace or '('.
	reMention = regexp.MustCompile(`(?:^|[\s(])(@[A-Za-z0-9][A-Za-z0-9.-]*)`)

	reLabel = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
	reTLD   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
)

const trailingPunct = ").,;:!?]\"'"

// BuildFacets returns link and mention facets over text, sorted by start
// and non-overlapping. When two matches overlap the earlier one wins.
func BuildFacets(text string) []model.Facet {
	if text == "" {
		return nil
	}

	var found []model.Facet
	for _, m := range reURL.FindAllStringIndex(text, -1) {
		raw := strings.TrimRight(text[m[0]:m[1]], trailingPunct)
		// Keep a closing paren that balances one inside the URL.
		if strings.Count(raw, "(") > strings.Count(raw, ")") && m[0]+len(raw) < m[1] && text[m[0]+len(raw)] == ')' {
			raw += ")"
		}
		if !IsURL(raw) {
			continue
		}
		found = append(found, model.Facet{
			ByteStart: m[0],
			ByteEnd:   m[0] + len(raw),
			Kind:      model.FacetLink,
			Target:    raw,
		})
	}
	for _, m := range reMention.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		handle := strings.TrimRight(text[start:end], ".-")
		if !IsHandle(handle) {
			continue
		}
		found = append(found, model.Facet{
			ByteStart: start,
			ByteEnd:   start + len(handle),
			Kind:      model.FacetMention,
			Target:    strings.ToLower(strings.TrimPrefix(handle, "@")),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].ByteStart < found[j].ByteStart
	})
	out := found[:0]
	lastEnd := 0
	for _, f := range found {
		if f.ByteStart < lastEnd {
			continue
		}
		out = append(out, f)
		lastEnd = f.ByteEnd
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsURL reports whether s is an absolute http(s) URL with a usable host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.User != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	return isDomain(host)
}

// IsHandle reports whether s is an "@handle" whose handle is a domain name,
// e.g. "@alice.bsky.social".
func IsHandle(s string) bool {
	if !strings.HasPrefix(s, "@") {
		return false
	}
	h := s[1:]
	return len(h) <= 253 && isDomain(h)
}

func isDomain(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !reLabel.MatchString(l) {
			return false
		}
	}
	return reTLD.MatchString(labels[len(labels)-1])
}
