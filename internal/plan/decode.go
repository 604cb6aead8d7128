package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

var (
	reFence    = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*\\n?(.*?)\\n?```$")
	reBlankRun = regexp.MustCompile(`\n{3,}`)
	reListSep  = regexp.MustCompile(`[,\s]+`)
)

// Parse turns raw backend text into an unvalidated plan: it trims
// whitespace, strips a surrounding markdown code fence and any prose
// around the JSON object, then hands the document to Decode.
func Parse(raw string) (*model.Plan, error) {
	s := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fieldErr("plan", "not a JSON object: %v", err)
	}
	return Decode(doc)
}

// ValidateDocument is Decode followed by Validate.
func ValidateDocument(doc map[string]any, opts Options) (*model.Plan, error) {
	p, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	return Validate(p, opts)
}

// Decode projects an untyped document into model.Plan, coercing scalars
// where the intent is unambiguous (numbers and booleans to strings,
// numeric strings to ids, a comma separated string to a tag list).
// Decode only checks shape; Validate checks content.
func Decode(doc map[string]any) (*model.Plan, error) {
	if doc == nil {
		return nil, fieldErr("plan", "must be an object")
	}
	p := &model.Plan{}

	if v, ok := doc["bluesky"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fieldErr("bluesky", "must be an object")
		}
		b := &model.BlueskySection{}
		var err error
		if b.Text, err = stringField(m, "bluesky.text", "text"); err != nil {
			return nil, err
		}
		b.Text = stripMarkup(b.Text)
		if b.Hashtags, err = listField(m, "bluesky.hashtags", "hashtags"); err != nil {
			return nil, err
		}
		if b.AltText, err = listField(m, "bluesky.alt_text", "alt_text"); err != nil {
			return nil, err
		}
		p.Bluesky = b
	}

	if v, ok := doc["youtube"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fieldErr("youtube", "must be an object")
		}
		y := &model.YouTubeSection{}
		var err error
		if y.Title, err = stringField(m, "youtube.title", "title"); err != nil {
			return nil, err
		}
		if y.Description, err = stringField(m, "youtube.description", "description"); err != nil {
			return nil, err
		}
		y.Description = stripMarkup(y.Description)
		if y.Tags, err = listField(m, "youtube.tags", "tags"); err != nil {
			return nil, err
		}
		if y.Category, err = stringField(m, "youtube.category", "category"); err != nil {
			return nil, err
		}
		p.YouTube = y
	}

	if v, ok := doc["meta"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fieldErr("meta", "must be an object")
		}
		if raw, ok := m["is_template"]; ok {
			b, err := coerceBool(raw)
			if err != nil {
				return nil, fieldErr("meta.is_template", "%v", err)
			}
			p.Meta.IsTemplate = b
		}
		name, err := stringField(m, "meta.model", "model")
		if err != nil {
			return nil, err
		}
		p.Meta.Model = name
	}

	if v, ok := doc["selected_media_ids"]; ok && v != nil {
		items, ok := v.([]any)
		if !ok {
			return nil, fieldErr("selected_media_ids", "must be a list of integers")
		}
		p.SelectedMediaIDs = make([]int64, 0, len(items))
		for i, it := range items {
			id, err := coerceID(it)
			if err != nil {
				return nil, fieldErr(fmt.Sprintf("selected_media_ids[%d]", i), "%v", err)
			}
			p.SelectedMediaIDs = append(p.SelectedMediaIDs, id)
		}
	}
	return p, nil
}

func stringField(m map[string]any, field, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := coerceString(v)
	if !ok {
		return "", fieldErr(field, "must be a string")
	}
	return strings.TrimSpace(s), nil
}

// listField returns nil when the key is absent so callers can tell
// "missing" from "empty".
func listField(m map[string]any, field, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for i, it := range t {
			s, ok := coerceString(it)
			if !ok {
				return nil, fieldErr(fmt.Sprintf("%s[%d]", field, i), "must be a string")
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case string:
		out := []string{}
		for _, part := range reListSep.Split(strings.TrimSpace(t), -1) {
			if part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fieldErr(field, "must be a list of strings")
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("must be a boolean")
		}
		return b, nil
	}
	return false, fmt.Errorf("must be a boolean")
}

func coerceID(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int64(t), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be an integer")
		}
		return id, nil
	case json.Number:
		return t.Int64()
	}
	return 0, fmt.Errorf("must be an integer")
}

// reHTMLTag matches the tags a backend wraps around prose. Text without
// one of them, such as "Vec<String>" or "<https://example.com>", is not
// markup.
var reHTMLTag = regexp.MustCompile(`(?i)</?(p|br|div|span|li|ul|ol|b|strong|em|i|u|h[1-6]|a|script|style)(\s[^<>]*)?/?>`)

// stripMarkup reduces HTML a backend wrapped around a text field to plain
// text, keeping paragraph and line breaks.
func stripMarkup(s string) string {
	if !reHTMLTag.MatchString(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n\n")
	})
	text := reBlankRun.ReplaceAllString(doc.Text(), "\n\n")
	return strings.TrimSpace(text)
}
