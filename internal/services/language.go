package services

import "strings"

const DefaultLanguage = "en"

// supportedLanguages maps ISO 639-1 codes to the English names LLMs and Whisper
// tend to answer with.
var supportedLanguages = map[string]string{
	"en": "english",
	"ja": "japanese",
	"zh": "chinese",
	"ko": "korean",
	"es": "spanish",
	"fr": "french",
	"de": "german",
	"it": "italian",
	"pt": "portuguese",
	"ru": "russian",
	"ar": "arabic",
	"hi": "hindi",
	"th": "thai",
	"vi": "vietnamese",
	"id": "indonesian",
	"ms": "malay",
	"tl": "tagalog",
	"tr": "turkish",
	"nl": "dutch",
	"pl": "polish",
	"uk": "ukrainian",
	"sv": "swedish",
}

var languageByName = func() map[string]string {
	m := make(map[string]string, len(supportedLanguages))
	for code, name := range supportedLanguages {
		m[name] = code
	}
	m["filipino"] = "tl"
	m["mandarin"] = "zh"
	return m
}()

// NormalizeLanguage maps a code, locale ("pt-BR") or English language name to a
// supported code, falling back to DefaultLanguage.
func NormalizeLanguage(lang string) string {
	if code, ok := lookupLanguage(lang); ok {
		return code
	}
	return DefaultLanguage
}

// IsAutoLanguage reports whether lang asks for detection instead of naming a language.
func IsAutoLanguage(lang string) bool {
	l := strings.TrimSpace(lang)
	return l == "" || strings.EqualFold(l, "auto")
}

// IsSupportedLanguage reports whether lang normalizes without falling back.
func IsSupportedLanguage(lang string) bool {
	_, ok := lookupLanguage(lang)
	return ok
}

func lookupLanguage(lang string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(lang))
	l = strings.Trim(l, ".\"'` ")
	if l == "" {
		return "", false
	}
	if _, ok := supportedLanguages[l]; ok {
		return l, true
	}
	if code, ok := languageByName[l]; ok {
		return code, true
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		if _, ok := supportedLanguages[l[:i]]; ok {
			return l[:i], true
		}
	}
	return "", false
}

func LanguageName(code string) string {
	if name, ok := supportedLanguages[code]; ok {
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return code
}
