package mention

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Mode selects the processing path for a mention.
type Mode string

const (
	ModeDub     Mode = "dub"
	ModeSummary Mode = "summary"
)

// Request is the intent parsed from a mention's text.
type Request struct {
	Mode     Mode
	Language language.Tag
	// SpaceURL is set when the mention links a Space directly.
	SpaceURL string
}

// LanguageName returns the English display name of the target language.
func (r Request) LanguageName() string {
	if name := display.English.Tags().Name(r.Language); name != "" {
		return name
	}
	return r.Language.String()
}

// supportedLanguages are the dubbing targets accepted in mentions.
var supportedLanguages = []language.Tag{
	language.English, language.Spanish, language.French, language.German,
	language.Italian, language.Portuguese, language.BrazilianPortuguese,
	language.Japanese, language.Korean, language.Chinese, language.Hindi,
	language.Arabic, language.Russian, language.Dutch, language.Polish,
	language.Turkish, language.Swedish, language.Indonesian, language.Filipino,
	language.Ukrainian, language.Greek, language.Czech, language.Finnish,
	language.Danish, language.Romanian, language.Bulgarian, language.Croatian,
	language.Slovak, language.Tamil, language.Malay, language.Vietnamese,
	language.Hungarian, language.Norwegian,
}

var (
	spaceURLPattern = regexp.MustCompile(`https?://(?:www\.|mobile\.)?(?:x|twitter)\.com/i/spaces/[A-Za-z0-9]+`)
	summaryPattern  = regexp.MustCompile(`(?i)\b(?:summary|summari[sz]e|tl;?dr)\b`)
	dubToPattern    = regexp.MustCompile(`(?i)\b(?:dub|translate)\w*(?:\s+(?:it|this|that))?\s+(?:to|into|in)\s+([a-z][a-z\-]*)`)
	inCodePattern   = regexp.MustCompile(`(?i)\bin\s+([a-z]{2,3}(?:-[a-z]{2,4})?)\b`)
	hashtagPattern  = regexp.MustCompile(`#([A-Za-z]{2,3}(?:-[A-Za-z]{2,4})?)\b`)
	languageByName  = buildLanguageIndex()
	matcher         = language.NewMatcher(supportedLanguages)
)

// inCodeStopwords are English words that also parse as language codes.
var inCodeStopwords = map[string]struct{}{
	"it": {}, "am": {}, "an": {}, "as": {}, "be": {}, "my": {}, "no": {},
	"or": {}, "so": {}, "to": {}, "we": {}, "the": {}, "and": {}, "her": {},
	"his": {}, "one": {}, "two": {}, "min": {}, "sec": {},
}

func buildLanguageIndex() map[string]language.Tag {
	index := make(map[string]language.Tag, len(supportedLanguages)*2)
	for _, tag := range supportedLanguages {
		if name := display.English.Tags().Name(tag); name != "" {
			index[strings.ToLower(name)] = tag
		}
		if self := display.Self.Name(tag); self != "" {
			index[strings.ToLower(self)] = tag
		}
	}
	return index
}

// ParseRequest reads text and decides the processing path. fallback is used
// when no target language is named.
func ParseRequest(text string, fallback language.Tag) Request {
	req := Request{Mode: ModeDub, Language: fallback}
	if m := spaceURLPattern.FindString(text); m != "" {
		req.SpaceURL = m
	}
	if summaryPattern.MatchString(text) {
		req.Mode = ModeSummary
	}
	if tag, ok := targetLanguage(text); ok {
		req.Language = tag
	}
	return req
}

// ParseLanguage resolves a language name or BCP 47 code to a supported tag.
func ParseLanguage(value string) (language.Tag, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return language.Und, false
	}
	if tag, ok := languageByName[value]; ok {
		return tag, true
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return language.Und, false
	}
	return supportedLanguages[idx], true
}

func targetLanguage(text string) (language.Tag, bool) {
	// Drop URLs first so path fragments never read as language codes.
	stripped := spaceURLPattern.ReplaceAllString(text, " ")
	for _, pattern := range []*regexp.Regexp{dubToPattern, hashtagPattern, inCodePattern} {
		for _, m := range pattern.FindAllStringSubmatch(stripped, -1) {
			if _, stop := inCodeStopwords[strings.ToLower(m[1])]; stop && pattern == inCodePattern {
				continue
			}
			if tag, ok := ParseLanguage(m[1]); ok {
				return tag, true
			}
		}
	}
	return language.Und, false
}
