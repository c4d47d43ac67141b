// Package textnorm canonicalizes raw statement lines before they are matched
// against the line grammar.
package textnorm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// CanonicalDash is the glyph every dash variant is folded into.
const CanonicalDash = "\u30fc"

var whitespace = strings.NewReplacer(
	"\u3000", "",
	" ", "",
	"\t", "",
	"\n", "",
	"\r", "",
)

var dashes = strings.NewReplacer(
	"\uff0d", CanonicalDash, // fullwidth hyphen-minus
	"\u2212", CanonicalDash, // minus sign
	"\u2015", CanonicalDash, // horizontal bar
)

const (
	halfKanaFirst    = '\uff61'
	halfKanaLast     = '\uff9f'
	halfVoicedMark   = '\uff9e'
	halfSemiVoiced   = '\uff9f'
	combiningVoiced  = '\u3099'
	combiningSemiVcd = '\u309a'
)

// Normalize removes whitespace, folds dash variants, narrows fullwidth ASCII
// and digits, then widens half-width kana. The steps run in that order;
// swapping the last two changes the result for mixed-width input.
func Normalize(raw string) string {
	s := whitespace.Replace(raw)
	s = dashes.Replace(s)
	s = narrowASCII(s)
	return widenKana(s)
}

// narrowASCII maps fullwidth forms of ASCII characters (U+FF01..U+FF5E) to
// ASCII. Kana and other wide characters are left alone.
func narrowASCII(s string) string {
	return strings.Map(func(r rune) rune {
		p := width.LookupRune(r)
		if p.Kind() != width.EastAsianFullwidth {
			return r
		}
		if n := p.Narrow(); n != 0 && n < utf8.RuneSelf {
			return n
		}
		return r
	}, s)
}

// widenKana maps half-width katakana to full-width. A half-width (semi-)voiced
// mark directly after a half-width kana is composed into the precomposed
// letter when Unicode has one.
func widenKana(s string) string {
	out := make([]rune, 0, utf8.RuneCountInString(s))
	prevHalfKana := false
	for _, r := range s {
		if !isHalfKana(r) {
			out = append(out, r)
			prevHalfKana = false
			continue
		}
		if prevHalfKana && (r == halfVoicedMark || r == halfSemiVoiced) {
			if c, ok := compose(out[len(out)-1], r); ok {
				out[len(out)-1] = c
				prevHalfKana = false
				continue
			}
		}
		if w := width.LookupRune(r).Wide(); w != 0 {
			r = w
		}
		out = append(out, r)
		prevHalfKana = true
	}
	return string(out)
}

func compose(base, mark rune) (rune, bool) {
	combining := combiningVoiced
	if mark == halfSemiVoiced {
		combining = combiningSemiVcd
	}
	composed := norm.NFC.String(string([]rune{base, combining}))
	if utf8.RuneCountInString(composed) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(composed)
	return r, true
}

func isHalfKana(r rune) bool {
	return r >= halfKanaFirst && r <= halfKanaLast
}
