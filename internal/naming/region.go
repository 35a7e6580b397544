package naming

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xxxsen/romsync/internal/model"
)

type regionTokens struct {
	region model.Region
	tokens []string
}

// regionTable is ordered by priority: the first region wins when a group names several.
var regionTable = []regionTokens{
	{model.RegionUSA, []string{"usa", "us", "u", "america"}},
	{model.RegionEurope, []string{"europe", "eur", "eu", "e"}},
	{model.RegionJapan, []string{"japan", "jpn", "jp", "j"}},
	{model.RegionWorld, []string{"world", "w"}},
	{model.RegionKorea, []string{"korea", "kor", "kr", "k"}},
	{model.RegionChina, []string{"china", "chn", "cn"}},
	{model.RegionTaiwan, []string{"taiwan", "twn", "tw"}},
	{model.RegionHongKong, []string{"hong kong", "hk"}},
	{model.RegionAsia, []string{"asia"}},
	{model.RegionBrazil, []string{"brazil", "bra", "br", "b"}},
	{model.RegionAustralia, []string{"australia", "aus", "au", "a"}},
	{model.RegionCanada, []string{"canada", "can", "ca"}},
	{model.RegionFrance, []string{"france", "f"}},
	{model.RegionGermany, []string{"germany", "ger", "g"}},
	{model.RegionSpain, []string{"spain", "spa", "s"}},
	{model.RegionItaly, []string{"italy", "ita", "i"}},
	{model.RegionNetherlands, []string{"netherlands", "holland", "nld"}},
	{model.RegionSweden, []string{"sweden", "swe"}},
	{model.RegionRussia, []string{"russia", "rus"}},
}

var (
	parenGroupRegex   = regexp.MustCompile(`\(([^()]*)\)`)
	bracketGroupRegex = regexp.MustCompile(`\[([^\[\]]*)\]`)
	languageTagRegex  = regexp.MustCompile(`^[a-z]{2}-[a-z]{2}$`)
)

// DetectRegion infers a release region from the tag groups of a filename.
// Parenthesized groups are consulted first, then bracketed groups, then a
// word-level scan of the whole name. Unmatched names resolve to RegionUnknown.
// Single-letter codes only count inside parentheses: GoodTools brackets such
// as [a], [b] and [f] are dump flags.
func DetectRegion(filename string) model.Region {
	name := trimExt(filename)
	groups := []struct {
		re         *regexp.Regexp
		allowShort bool
	}{
		{parenGroupRegex, true},
		{bracketGroupRegex, false},
	}
	for _, g := range groups {
		for _, m := range g.re.FindAllStringSubmatch(name, -1) {
			if r := matchGroup(m[1], g.allowShort); r != model.RegionUnknown {
				return r
			}
		}
	}
	return scanWords(name)
}

func matchGroup(group string, allowShort bool) model.Region {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" || languageTagRegex.MatchString(group) {
		return model.RegionUnknown
	}
	parts := make([]string, 0, 4)
	for _, p := range strings.Split(group, ",") {
		p = strings.TrimSpace(p)
		if p == "" || languageTagRegex.MatchString(p) {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return model.RegionUnknown
	}

	found := make(map[model.Region]struct{})
	for _, p := range parts {
		if len(p) == 1 && !allowShort {
			continue
		}
		if r, ok := exactRegion(p); ok {
			found[r] = struct{}{}
		}
	}
	if len(found) > 0 {
		for _, entry := range regionTable {
			if _, ok := found[entry.region]; ok {
				return entry.region
			}
		}
	}

	for _, entry := range regionTable {
		for _, token := range entry.tokens {
			if len(token) <= 1 {
				continue
			}
			for _, p := range parts {
				if partialMatch(p, token) {
					return entry.region
				}
			}
		}
	}
	return model.RegionUnknown
}

func exactRegion(part string) (model.Region, bool) {
	for _, entry := range regionTable {
		for _, token := range entry.tokens {
			if part == token {
				return entry.region, true
			}
		}
	}
	return model.RegionUnknown, false
}

// partialMatch reports whether a word inside part matches token. Two-letter
// codes must be a whole word ("eu rev a"); longer tokens may prefix a word
// ("australian", "japanese").
func partialMatch(part, token string) bool {
	if strings.Contains(token, " ") {
		return strings.Contains(part, token)
	}
	for _, w := range splitWords(part) {
		if len(token) == 2 && w == token {
			return true
		}
		if len(token) > 2 && strings.HasPrefix(w, token) {
			return true
		}
	}
	return false
}

// fallbackTokens are the only words trusted outside a tag group. Words that
// commonly appear in titles ("world", "can", "america") are left out.
var fallbackTokens = map[string]model.Region{
	"usa":    model.RegionUSA,
	"europe": model.RegionEurope,
	"eur":    model.RegionEurope,
	"japan":  model.RegionJapan,
	"jpn":    model.RegionJapan,
	"korea":  model.RegionKorea,
	"kor":    model.RegionKorea,
	"china":  model.RegionChina,
	"chn":    model.RegionChina,
	"taiwan": model.RegionTaiwan,
	"brazil": model.RegionBrazil,
	"aus":    model.RegionAustralia,
	"ger":    model.RegionGermany,
	"rus":    model.RegionRussia,
}

// scanWords is the last resort: whole words of the bare name, never substrings.
func scanWords(name string) model.Region {
	for _, w := range splitWords(strings.ToLower(name)) {
		if r, ok := fallbackTokens[w]; ok {
			return r
		}
	}
	return model.RegionUnknown
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
