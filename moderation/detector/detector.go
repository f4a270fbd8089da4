package detector

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Link signatures matched by default. Scheme prefixes catch anything with an
// explicit protocol; the bare host tokens catch invite/short links posted
// without one.
var DefaultLinkTokens = []string{
	"http://",
	"https://",
	"t.me",
	"telegram.me",
	"wa.me",
	"fb.me",
	"bit.ly",
}

// LinkDetector classifies message text against a configured set of link
// signature tokens. Matching is case-insensitive substring containment, so a
// bare host token matches with or without a scheme.
//
// The token set is fixed after construction; a LinkDetector is safe for
// concurrent use once handed to the engine.
type LinkDetector struct {
	tokens []string
}

func NewLinkDetector(tokens []string) *LinkDetector {
	d := &LinkDetector{}
	d.AddTokens(tokens...)
	return d
}

// Appends additional signature tokens. Must not be called concurrently with
// IsViolation.
func (d *LinkDetector) AddTokens(tokens ...string) {
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		d.tokens = append(d.tokens, tok)
	}
}

// Loads additional tokens from a JSON file containing a single array of
// strings.
func (d *LinkDetector) LoadFromFileJSON(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return err
	}
	d.AddTokens(tokens...)
	return nil
}

// IsViolation reports whether text contains any configured link signature.
// Pure function of the input; no network calls, no state mutation.
//
// Malformed (non-UTF-8) input fails open as non-violating, so encoding
// garbage can't produce a false positive.
func (d *LinkDetector) IsViolation(text string) bool {
	if text == "" {
		return false
	}
	if !utf8.ValidString(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, tok := range d.tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
