package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/brandscrape/normalize"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		href     string
		want     string
		fromSlug bool
		ok       bool
	}{
		{"button text falls back to slug", "Shop All", "/brands/acme-co", "acme co", true, true},
		{"good text preferred over slug", "Acme", "/brands/acme-co", "Acme", false, true},
		{"designer path", "", "https://shop.test/designers/maison-margiela", "maison margiela", true, true},
		{"brand path query and button text", "View", "/brands/acme?x=1", "", false, false},
		{"brand path with filter query", "Acme", "/brands/acme?color=red", "", false, false},
		{"brand path with invalid slug", "Acme Co", "/brands/acme_co", "", false, false},
		{"plain link with brand text", "Zimmermann", "/zimmermann", "Zimmermann", false, true},
		{"text whitespace squashed", "  Miu \n Miu ", "/x", "Miu Miu", false, true},
		{"navigation verb", "See more", "/x", "", false, false},
		{"word boundary respected", "Allbirds", "/allbirds", "Allbirds", false, true},
		{"home page phrase", "Ana Sayfa", "/", "", false, false},
		{"letter group", "A-C", "/brands?letter=a-c", "", false, false},
		{"numeric", "123", "/page/123", "", false, false},
		{"too long", strings.Repeat("x", 90), "/x", "", false, false},
		{"single char", "Z", "/z", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Classify(tt.text, tt.href)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, c.Value)
			assert.Equal(t, tt.fromSlug, c.FromSlug)
			assert.Equal(t, strings.ToLower(tt.want), c.Key)
		})
	}
}

func TestClassify_SlugNormalizesToTitle(t *testing.T) {
	c, ok := Classify("Shop All", "/brands/acme-co")
	require.True(t, ok)
	assert.Equal(t, "Acme Co", normalize.Normalize(c.Value, normalize.DefaultVocabulary()))
}

func TestClassify_KeyTruncated(t *testing.T) {
	text := "Abc " + strings.Repeat("d", 60)
	c, ok := Classify(text, "/x")
	require.True(t, ok)
	assert.Equal(t, text, c.Value)
	assert.Len(t, c.Key, maxKeyLen)
}

func TestSlugFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/brands/acme-co", "acme co", true},
		{"/brands/acme-co/", "acme co", true},
		{"https://shop.test/brands/acme-co/#top", "acme co", true},
		{"/designers/maison%20margiela", "maison margiela", true},
		{"/merk/o'neill", "o'neill", true},
		{"/brands/acme#x?y", "acme", true},
		{"/brands/acme?page=2#x", "", false},
		{"/b/x", "", false},
		{"/brands/acme_co", "", false},
		{"/brands/" + strings.Repeat("a", 61), "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := SlugFromHref(tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLooksLikeButton(t *testing.T) {
	for _, text := range []string{"Filter", "SORT BY", "view all brands", "Designers", "home page", "Startseite", "ab-cd", "42", "x"} {
		assert.True(t, LooksLikeButton(text), text)
	}
	for _, text := range []string{"Acne Studios", "Salvatore Ferragamo", "Allsaints", "Viewpoint"} {
		assert.False(t, LooksLikeButton(text), text)
	}
}
