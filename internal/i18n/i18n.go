// Package i18n resolves the caller's language and renders user-facing error text.
package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"agiletools/pkg/types"
)

// LangParam is the query parameter used to select a language.
const LangParam = "lang"

// Reasons used by the HTTP layer that have no domain sentinel.
const (
	ReasonBadRequest   types.Reason = "BAD_REQUEST"
	ReasonUnauthorized types.Reason = "UNAUTHORIZED"
	ReasonInternal     types.Reason = "INTERNAL"
)

var supportedTags = []language.Tag{
	language.English,
	language.French,
}

var tagMatcher = language.NewMatcher(supportedTags)

var messages = catalog.NewBuilder(catalog.Fallback(language.English))

func init() {
	for tag, texts := range translations {
		for reason, text := range texts {
			if err := messages.SetString(tag, key(reason), text); err != nil {
				panic(err)
			}
		}
	}
}

// Supported returns the list of supported language tags.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(supportedTags))
	copy(tags, supportedTags)
	return tags
}

// Default returns the default language tag.
func Default() language.Tag {
	return language.English
}

// Printer returns a message printer for the supplied tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(messages))
}

// ResolveTag picks the language from the lang query parameter, then Accept-Language.
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return Default()
	}

	if value := strings.TrimSpace(r.URL.Query().Get(LangParam)); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return match(tag)
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return match(tags...)
		}
	}

	return Default()
}

// ErrorMessage renders the text for reason in tag's language.
func ErrorMessage(tag language.Tag, reason types.Reason) string {
	if _, known := translations[language.English][reason]; !known {
		reason = ReasonInternal
	}
	return Printer(tag).Sprintf(key(reason))
}

// match returns a supported tag without the region extensions the matcher adds.
func match(tags ...language.Tag) language.Tag {
	_, index, confidence := tagMatcher.Match(tags...)
	if confidence == language.No {
		return Default()
	}
	return supportedTags[index]
}

func key(reason types.Reason) string {
	return "error." + string(reason)
}
