package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func brandPage(from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("Brand %03d", i))
	}
	return out
}

func TestCandidateSet_Add(t *testing.T) {
	seen := CandidateSet{}
	assert.Equal(t, 40, seen.Add(brandPage(0, 40)))
	assert.Equal(t, 0, seen.Add(brandPage(0, 40)), "repeated page adds nothing")
	assert.Equal(t, 40, seen.Add(brandPage(20, 80)))
	assert.Len(t, seen, 80)
}

func TestCandidateSet_CaseAndWhitespace(t *testing.T) {
	seen := CandidateSet{}
	assert.Equal(t, 2, seen.Add([]string{"Acme", " ACME ", "Miu  Miu", "miu miu", ""}))
}

func TestCandidateSet_LargeSharedBlock(t *testing.T) {
	shared := brandPage(1000, 1200)
	seen := CandidateSet{}
	seen.Add(append(append([]string{}, shared...), brandPage(0, 12)...))
	assert.Equal(t, 12, seen.Add(append(append([]string{}, shared...), brandPage(12, 24)...)))
}
