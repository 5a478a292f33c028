package extract

import "strings"

// CandidateSet remembers the raw candidates seen across the pages of one
// pagination walk. Candidates compare case-insensitively after trimming
// and whitespace collapsing.
type CandidateSet map[string]struct{}

// Add records candidates and returns how many of them were new.
func (s CandidateSet) Add(candidates []string) int {
	added := 0
	for _, c := range candidates {
		key := strings.ToLower(squash(c))
		if key == "" {
			continue
		}
		if _, ok := s[key]; ok {
			continue
		}
		s[key] = struct{}{}
		added++
	}
	return added
}
