package naming

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	tagGroupRegex           = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]`)
	separatorRegex          = regexp.MustCompile(`[_.]+`)
	punctRegex              = regexp.MustCompile(`[^\p{L}\p{N}\s'&-]+`)
	whitespaceCollapseRegex = regexp.MustCompile(`\s+`)
	extRegex                = regexp.MustCompile(`^\.[A-Za-z0-9]{1,4}$`)
)

// trimExt drops a trailing file extension, leaving names such as
// "Super Mario Bros. 3" intact.
func trimExt(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	ext := filepath.Ext(name)
	if extRegex.MatchString(ext) {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// CleanDisplayName derives a human readable title from a ROM filename.
// Tag groups are removed, separators become spaces and every word is title cased.
func CleanDisplayName(filename string) string {
	name := trimExt(filename)
	name = tagGroupRegex.ReplaceAllString(name, " ")
	name = separatorRegex.ReplaceAllString(name, " ")
	name = punctRegex.ReplaceAllString(name, " ")
	name = whitespaceCollapseRegex.ReplaceAllString(name, " ")
	name = strings.Trim(name, " -'&")
	if name == "" {
		return trimExt(filename)
	}
	return cases.Title(language.Und).String(name)
}

// SortKey builds a lower-case ordering key; Han characters are romanised so
// Chinese titles sort next to their latin neighbours.
func SortKey(name string) string {
	args := pinyin.NewArgs()
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.Is(unicode.Han, r) {
			py := pinyin.LazyPinyin(string(r), args)
			if len(py) > 0 {
				sb.WriteString(py[0])
				sb.WriteByte(' ')
				continue
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSpace(whitespaceCollapseRegex.ReplaceAllString(sb.String(), " "))
}
