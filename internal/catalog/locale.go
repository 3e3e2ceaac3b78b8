package catalog

import (
	"golang.org/x/text/language"
)

// FallbackChain returns the locales whose translations apply to locale,
// most distant first: "en-US" yields ["en", "en-US"]. Unparseable input is
// returned as-is so that the caller can still try the file.
func FallbackChain(locale string) []string {
	if locale == "" {
		return nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return []string{locale}
	}
	base, conf := tag.Base()
	if conf == language.No {
		return []string{locale}
	}

	chain := make([]string, 0, 2)
	if b := base.String(); b != locale {
		chain = append(chain, b)
	}
	return append(chain, locale)
}
