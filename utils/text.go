package utils

import "regexp"

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@(\w+)`)
)

// ExtractHashtags returns the tags in text in order of appearance, without
// the leading '#'. Repeated tags are kept.
func ExtractHashtags(text string) []string {
	return extract(hashtagRe, text)
}

// ExtractMentions returns the handles mentioned in text, without the '@'.
func ExtractMentions(text string) []string {
	return extract(mentionRe, text)
}

func extract(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
