// Package i18n resolves the user-facing strings shown when a fault is caught.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// KeyAppException is the generic message shown to users of release builds.
const KeyAppException = "app_exception"

var translations = map[language.Tag]map[string]string{
	language.English: {
		KeyAppException: "The application hit an unexpected error and has recovered.",
	},
	language.Spanish: {
		KeyAppException: "La aplicación encontró un error inesperado y se ha recuperado.",
	},
	language.SimplifiedChinese: {
		KeyAppException: "应用程序发生异常，已自动恢复。",
	},
}

// Catalog resolves message keys for a single locale.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New builds a catalog for locale. An empty locale falls back to the
// LC_ALL, LC_MESSAGES and LANG environment variables, then English.
func New(locale string) *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, text := range msgs {
			// SetString only fails on malformed tags, which the map cannot hold.
			_ = b.SetString(tag, key, text)
		}
	}

	if locale == "" {
		locale = localeFromEnv()
	}
	tag := match(b, locale)

	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}
}

// Language returns the matched language tag.
func (c *Catalog) Language() language.Tag {
	return c.tag
}

// Resolve returns the localized text for key. Unknown keys resolve to themselves.
func (c *Catalog) Resolve(key string) string {
	return c.printer.Sprintf(key)
}

func match(b *catalog.Builder, locale string) language.Tag {
	supported := b.Languages()
	if len(supported) == 0 {
		return language.English
	}
	requested, err := language.Parse(normalize(locale))
	if err != nil {
		return language.English
	}
	_, idx, conf := language.NewMatcher(supported).Match(requested)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return "en"
}

// normalize turns POSIX locales such as "es_ES.UTF-8" into BCP 47 form.
func normalize(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	return strings.ReplaceAll(locale, "_", "-")
}
