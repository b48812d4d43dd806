package platforms

import "strings"

// Curated forbidden terms. The effective blocklist additionally contains
// generated spacing variants; matching happens on leetspeak-normalized,
// lowercased text.
var curatedTerms = []string{
	"buy followers",
	"click here to win",
	"crypto giveaway",
	"free money",
	"get rich quick",
	"guaranteed profit",
	"hot singles",
	"limited time offer act now",
	"miracle cure",
	"work from home scam",
}

// blocklist is generated once at process start and never mutated afterwards.
var blocklist = buildBlocklist(curatedTerms)

var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"8", "b",
	"@", "a",
	"$", "s",
	"!", "i",
)

// normalizeContent lowercases and reverses common leetspeak substitutions so
// obfuscated spellings still match.
func normalizeContent(text string) string {
	return leetReplacer.Replace(strings.ToLower(text))
}

func buildBlocklist(terms []string) []string {
	seen := make(map[string]struct{}, len(terms)*2)
	out := make([]string, 0, len(terms)*2)
	add := func(term string) {
		if term == "" {
			return
		}
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	for _, term := range terms {
		norm := normalizeContent(term)
		add(norm)
		// Spacing variants catch "freemoney" and "free-money"
		add(strings.ReplaceAll(norm, " ", ""))
		add(strings.ReplaceAll(norm, " ", "-"))
	}
	return out
}

// forbiddenTerm returns the first blocklisted term contained in text.
func forbiddenTerm(text string) (string, bool) {
	norm := normalizeContent(text)
	for _, term := range blocklist {
		if strings.Contains(norm, term) {
			return term, true
		}
	}
	return "", false
}

// checkContentPolicy rejects text containing a forbidden term.
func checkContentPolicy(text string) error {
	if term, hit := forbiddenTerm(text); hit {
		return validationErrorf("content contains forbidden term %q", term)
	}
	return nil
}
