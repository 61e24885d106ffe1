// Package normalize implements the text normalisation applied to English
// reference transcripts before word error rate scoring.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// apostrophes maps right single quote, backtick and prime to '.
	apostrophes = strings.NewReplacer("’", "'", "`", "'", "′", "'")

	// punctuation is replaced by a space. The apostrophe is deliberately
	// absent so that contractions survive.
	punctuation = regexp.MustCompile("[‘’“”!@#$^&*()\\[\\]{};:,./<>|?`~\\-=_+\"\\\\]")

	// visible keeps runs of printable ASCII. Everything else, including
	// spaces and non-ASCII letters, separates runs.
	visible = regexp.MustCompile(`[\x21-\x7E'\n]+`)
)

// English normalises text for word error rate scoring:
//
//  1. runs of whitespace collapse to a single space;
//  2. ’ ` and ′ become ';
//  3. the text is lower-cased;
//  4. punctuation (except ') is replaced with a space;
//  5. only runs of printable ASCII are kept, joined by single spaces.
//
// English is deterministic and safe for concurrent use.
func English(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = apostrophes.Replace(text)
	// A Caser is stateful; build one per call.
	text = cases.Lower(language.Und).String(text)
	text = punctuation.ReplaceAllString(text, " ")
	return strings.Join(visible.FindAllString(text, -1), " ")
}
