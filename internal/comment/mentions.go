package comment

import (
	"regexp"
	"strings"

	"github.com/erikvandergeld/focalize/internal/auth"
)

// mentionPattern captures an @-token and the word that follows it, so both
// "@ana" and "@Ana Silva" resolve.
var mentionPattern = regexp.MustCompile(`@(\w+)(?:\s+(\w+))?`)

// ExtractMentions resolves @-mention tokens in text against the principal
// directory. A token matches a principal when it equals the principal's
// first name or full display name, case-insensitively. The author is always
// excluded, duplicates are dropped, and ids come back in first-mention
// order. Extraction belongs to the transport layer: handlers call it before
// handing the resolved ids to the processor.
func ExtractMentions(text, authorID string, principals []auth.Principal) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, m := range matches {
		first := strings.ToLower(m[1])
		full := first
		if m[2] != "" {
			full = first + " " + strings.ToLower(m[2])
		}

		for _, p := range principals {
			if p.ID == authorID {
				continue
			}
			name := strings.ToLower(p.DisplayName)
			firstName, _, _ := strings.Cut(name, " ")
			if name != full && firstName != first {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}
	}
	return ids
}
