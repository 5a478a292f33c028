package normalize

import "strings"

// baselineWords are lowercase navigation, category and product-type terms
// that are never brand names on their own.
var baselineWords = []string{
	"all", "brands", "designers", "shop", "view", "see", "more", "new", "sale",
	"women", "men", "kids", "accessories", "shoes", "bags", "beauty", "home",
	"collection", "bestseller", "trending", "clear", "filter", "sort",
	"products", "items", "clothing", "tops", "bottoms", "dresses", "outerwear",
	"swimwear", "loungewear", "intimates", "heels", "boots", "sandals",
	"sneakers", "loafers", "socks", "jewelry", "belts", "scarves", "sunglasses",
	"rompers", "jumpsuits", "arrivals", "chance", "apply", "ana", "sayfa",
}

// baselinePhrases reject a name when they occur anywhere in it.
var baselinePhrases = []string{
	"ana sayfa", "new arrivals", "sale by brands", "shop by brand", "last chance",
	"sale items", "sale clothing", "sale shoes", "sale sweaters", "sale dress",
	"shop the look", "denim jean sale", "leather sale", "swim sale", "coat sale",
	"dress sale", "shoe sale", "winter dress collection", "summer dress sale",
	"summer shoe sale", "the blazer edit", "the boot shop", "the scarf edit",
	"the valentine", "conditions apply", "hot for summer", "off the beaten track",
	"printed artworks", "solid striped", "sale fw", " front", " edit",
	"date shoes", "products", " shop", "on sale",
}

// Vocabulary is the noise vocabulary used to reject non-brand strings.
// It is a value: With returns a new Vocabulary and never mutates the receiver,
// so one Vocabulary can be shared by concurrent fetches.
type Vocabulary struct {
	words   map[string]struct{}
	phrases []string
}

// DefaultVocabulary returns the baseline noise vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{}.With(baselineWords, baselinePhrases)
}

// With returns a copy of v extended with extra words and phrases.
// Entries are lowercased; words are trimmed, phrases keep their spacing.
func (v Vocabulary) With(words, phrases []string) Vocabulary {
	out := Vocabulary{
		words:   make(map[string]struct{}, len(v.words)+len(words)),
		phrases: make([]string, 0, len(v.phrases)+len(phrases)),
	}
	for w := range v.words {
		out.words[w] = struct{}{}
	}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out.words[w] = struct{}{}
		}
	}
	out.phrases = append(out.phrases, v.phrases...)
	for _, p := range phrases {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out.phrases = append(out.phrases, strings.ToLower(p))
	}
	return out
}

// IsNoiseWord reports an exact (case-insensitive) match against the word set.
func (v Vocabulary) IsNoiseWord(s string) bool {
	_, ok := v.words[strings.ToLower(s)]
	return ok
}

// ContainsNoisePhrase reports whether s contains any noise phrase.
func (v Vocabulary) ContainsNoisePhrase(s string) bool {
	s = strings.ToLower(s)
	for _, p := range v.phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Len returns the number of words and phrases.
func (v Vocabulary) Len() (words, phrases int) {
	return len(v.words), len(v.phrases)
}
