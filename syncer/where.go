package syncer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/portasync/portasync/jsonsql"
)

// The configured where dialect is deliberately tiny: `col = literal`,
// `col LIKE pattern`, `col IS NULL`, and AND-chains of those. Anything else
// is a configuration error, caught before the run contacts the remote.
var (
	eqRe     = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
	likeRe   = regexp.MustCompile(`(?i)^(\w+)\s+LIKE\s+(.+)$`)
	isNullRe = regexp.MustCompile(`(?i)^(\w+)\s+IS\s+NULL$`)
	andRe    = regexp.MustCompile(`(?i)\s+AND\s+`)
	wordRe   = regexp.MustCompile(`^\w+$`)
)

// translateWhere compiles the configured filter into a remote where
// expression. An empty clause translates to nil.
func translateWhere(clause string) (jsonsql.Where, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, nil
	}

	parts := andRe.Split(clause, -1)
	terms := make([]jsonsql.Where, 0, len(parts))
	for _, part := range parts {
		w, err := translateTerm(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		terms = append(terms, w)
	}
	return jsonsql.And(terms...), nil
}

func translateTerm(term string) (jsonsql.Where, error) {
	if m := isNullRe.FindStringSubmatch(term); m != nil {
		return jsonsql.Eq(m[1], nil), nil
	}
	if m := likeRe.FindStringSubmatch(term); m != nil {
		v, err := parseLiteral(m[2])
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, ConfigurationErr("LIKE pattern must be a string in %q", term)
		}
		return jsonsql.Like(m[1], s), nil
	}
	if m := eqRe.FindStringSubmatch(term); m != nil {
		v, err := parseLiteral(m[2])
		if err != nil {
			return nil, err
		}
		return jsonsql.Eq(m[1], v), nil
	}
	return nil, ConfigurationErr("unsupported where term %q", term)
}

// parseLiteral reads a quoted string, number, boolean or null.
func parseLiteral(s string) (any, error) {
	s = strings.TrimSpace(s)

	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1], nil
		}
	}

	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}

	// Bare words pass through as strings, matching how hand-written
	// configs usually spell simple values.
	if wordRe.MatchString(s) {
		return s, nil
	}

	return nil, ConfigurationErr("cannot parse literal %q", s)
}
