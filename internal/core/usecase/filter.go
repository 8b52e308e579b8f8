package usecase

import (
	"strings"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// FilterCandidates removes candidates whose labels contain an excluded label
// substring or whose title matches an exclude pattern. It runs per retrieval
// path before fusion, so removed candidates never hold a rank in any source
// list. Order of survivors is preserved.
func FilterCandidates(candidates []domain.RetrievalCandidate, excludeLabels, excludeTitlePatterns []string) []domain.RetrievalCandidate {
	if len(excludeLabels) == 0 && len(excludeTitlePatterns) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if labelExcluded(c.Document.Labels, excludeLabels) {
			continue
		}
		if titleExcluded(c.Document.Title, excludeTitlePatterns) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func labelExcluded(labels, excluded []string) bool {
	for _, label := range labels {
		ll := strings.ToLower(label)
		for _, ex := range excluded {
			ex = strings.ToLower(strings.TrimSpace(ex))
			if ex != "" && strings.Contains(ll, ex) {
				return true
			}
		}
	}
	return false
}

func titleExcluded(title string, patterns []string) bool {
	lt := strings.ToLower(title)
	for _, p := range patterns {
		if matchTitlePattern(lt, strings.ToLower(strings.TrimSpace(p))) {
			return true
		}
	}
	return false
}

// matchTitlePattern supports the four pattern forms: "*foo*" substring,
// "foo*" prefix, "*foo" suffix, and exact match. Inputs are pre-lowered.
func matchTitlePattern(title, pattern string) bool {
	if pattern == "" {
		return false
	}
	prefix := strings.HasSuffix(pattern, "*")
	suffix := strings.HasPrefix(pattern, "*")
	body := strings.Trim(pattern, "*")
	if body == "" {
		return suffix || prefix // bare "*" matches everything
	}
	switch {
	case prefix && suffix:
		return strings.Contains(title, body)
	case prefix:
		return strings.HasPrefix(title, body)
	case suffix:
		return strings.HasSuffix(title, body)
	default:
		return title == pattern
	}
}
