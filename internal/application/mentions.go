package application

import "regexp"

var mentionPattern = regexp.MustCompile(`\B@(\w+)`)

// ExtractMentions returns the distinct @names in text, in order of first use.
// An @ preceded by a word character (as in an e-mail address) is not a mention.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
