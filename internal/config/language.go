package config

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// Languages lists the catalog languages. English is the fallback.
var Languages = []string{"en", "es", "ru", "de", "fr", "it", "ko", "uk", "pl", "zh"}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(Languages))
	for i, l := range Languages {
		tags[i] = language.MustParse(l)
	}
	return language.NewMatcher(tags)
}()

// ResolveLanguage maps a requested language or locale ("de", "pt-BR",
// "fr_CA.UTF-8") to the best supported catalog language. An empty request
// resolves the system locale.
func ResolveLanguage(requested string) string {
	if requested == "" {
		requested = SystemLocale()
	}
	tag, err := language.Parse(normalizeLocale(requested))
	if err != nil {
		return "en"
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	return Languages[idx]
}

// SystemLocale returns the locale from LC_ALL, LC_MESSAGES or LANG.
func SystemLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return "en"
}

// normalizeLocale turns a POSIX locale into a BCP 47 tag.
func normalizeLocale(s string) string {
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", "-")
}

// LocalizedName returns a language's name in that language.
func LocalizedName(lang string) string {
	switch lang {
	case "en":
		return "English"
	case "es":
		return "Español"
	case "de":
		return "Deutsch"
	case "it":
		return "Italiano"
	case "fr":
		return "Français"
	case "ko":
		return "한국어"
	case "uk":
		return "Українська"
	case "pl":
		return "Polski"
	case "ru":
		return "Русский"
	case "zh":
		return "汉语"
	default:
		return "Unknown"
	}
}
