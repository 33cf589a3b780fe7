package chatgraph

import "strings"

const maxSuggestions = 5

// candidate is a resolvable entity: a display name plus its alternate
// names (aliases), both compared case-insensitively.
type candidate struct {
	id      string
	display string
	aliases []string
}

// matchResult is the outcome of fuzzyResolve: either a single resolved id,
// or a list of suggestion strings when the query was ambiguous or matched
// nothing exactly.
type matchResult struct {
	id          string
	resolved    bool
	suggestions []string
}

// fuzzyResolve implements the resolution order in §4.11: exact lowercase
// display match -> exact alias match -> single substring match on display
// name (if multiple, return up to 5 suggestions) -> single substring alias
// match -> suggestions from alias space.
func fuzzyResolve(query string, candidates []candidate) matchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return matchResult{}
	}

	for _, c := range candidates {
		if strings.ToLower(c.display) == q {
			return matchResult{id: c.id, resolved: true}
		}
	}

	for _, c := range candidates {
		for _, a := range c.aliases {
			if strings.ToLower(a) == q {
				return matchResult{id: c.id, resolved: true}
			}
		}
	}

	var displaySubstringHits []candidate
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.display), q) {
			displaySubstringHits = append(displaySubstringHits, c)
		}
	}
	if len(displaySubstringHits) == 1 {
		return matchResult{id: displaySubstringHits[0].id, resolved: true}
	}
	if len(displaySubstringHits) > 1 {
		return matchResult{suggestions: suggestionNames(displaySubstringHits)}
	}

	var aliasSubstringHits []candidate
	var aliasSubstringNames []string
	for _, c := range candidates {
		for _, a := range c.aliases {
			if strings.Contains(strings.ToLower(a), q) {
				aliasSubstringHits = append(aliasSubstringHits, c)
				aliasSubstringNames = append(aliasSubstringNames, a)
			}
		}
	}
	if len(aliasSubstringHits) == 1 {
		return matchResult{id: aliasSubstringHits[0].id, resolved: true}
	}
	if len(aliasSubstringHits) > 1 {
		return matchResult{suggestions: capSuggestions(aliasSubstringNames)}
	}

	return matchResult{}
}

func suggestionNames(hits []candidate) []string {
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.display)
	}
	return capSuggestions(names)
}

func capSuggestions(names []string) []string {
	if len(names) > maxSuggestions {
		return names[:maxSuggestions]
	}
	return names
}
