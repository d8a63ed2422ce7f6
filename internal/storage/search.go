package storage

import (
	"context"
	"regexp"
	"strings"
)

// Query is a parsed search string. Free words go to Terms; name:, desc: and
// tag: prefixes scope a word (or a quoted phrase) to one field.
type Query struct {
	Names []string
	Descs []string
	Tags  []string
	Terms []string
}

var queryPattern = regexp.MustCompile(`(\w+):"([^"]+)"|(\w+):(\S+)|"([^"]+)"|(\S+)`)

// ParseQuery splits a search string like `tag:math name:"unit conv" metric`.
// Unknown prefixes are dropped.
func ParseQuery(raw string) Query {
	var q Query
	add := func(key, value string) {
		value = strings.TrimSpace(strings.ReplaceAll(value, `"`, ""))
		if value == "" {
			return
		}
		switch strings.ToLower(key) {
		case "name":
			q.Names = append(q.Names, value)
		case "desc":
			q.Descs = append(q.Descs, value)
		case "tag":
			q.Tags = append(q.Tags, value)
		case "":
			q.Terms = append(q.Terms, value)
		}
	}
	for _, m := range queryPattern.FindAllStringSubmatch(raw, -1) {
		switch {
		case m[1] != "":
			add(m[1], m[2])
		case m[3] != "":
			add(m[3], m[4])
		case m[5] != "":
			add("", m[5])
		default:
			add("", m[6])
		}
	}
	return q
}

// match renders the full-text part of q as an FTS5 expression. Every word
// must match as a prefix.
func (q Query) match() string {
	var parts []string
	for _, t := range q.Terms {
		parts = append(parts, ftsPhrase(t))
	}
	for _, n := range q.Names {
		parts = append(parts, "name : "+ftsPhrase(n))
	}
	for _, d := range q.Descs {
		parts = append(parts, "description : "+ftsPhrase(d))
	}
	return strings.Join(parts, " AND ")
}

// escapeLike escapes the LIKE wildcards in s for use with ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func ftsPhrase(s string) string {
	return `"` + s + `"*`
}

// SearchTools runs a full-text search over name, description and tags,
// optionally scoped with name:/desc:/tag: prefixes. A query with no text
// part degrades to a tag-filtered ListTools.
func (s *Store) SearchTools(ctx context.Context, raw string, opts ListOptions) ([]Tool, error) {
	q := ParseQuery(raw)
	match := q.match()
	var query string
	var args []any
	if match == "" {
		query = `SELECT ` + prefixColumns("t", toolColumns) + ` FROM tools t WHERE 1 = 1`
	} else {
		query = `SELECT ` + prefixColumns("t", toolColumns) + `
			FROM tools_fts f JOIN tools t ON t.seq = f.rowid
			WHERE tools_fts MATCH ?`
		args = append(args, match)
	}
	for _, tag := range q.Tags {
		query += ` AND EXISTS (SELECT 1 FROM json_each(t.tags) WHERE json_each.value LIKE ? ESCAPE '\')`
		args = append(args, "%"+escapeLike(tag)+"%")
	}
	if opts.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(t.tags) WHERE json_each.value = ?)`
		args = append(args, opts.Tag)
	}
	if match == "" {
		query += ` ORDER BY t.updated_at DESC, t.seq DESC`
	} else {
		query += ` ORDER BY bm25(tools_fts), t.updated_at DESC`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, opts.limit(), opts.Offset)
	return s.queryTools(ctx, query, args...)
}
