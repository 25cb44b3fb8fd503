package control

import (
	"bytes"
	"os"
	"strings"

	"pault.ag/go/debian/control"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// legacyParagraph is a throwaway struct whose only purpose is to let
// pault.ag/go/debian/control's decoder hand back every field of a
// legacy control stanza without requiring each SSM control key to be
// known ahead of time: Paragraph.Values captures the full key set.
type legacyParagraph struct {
	control.Paragraph
}

// LoadLegacy reads a colon-separated control stanza (the same
// paragraph/continuation-line shape a Debian control file uses) and
// converts it to the current key set: "package" renames to "name",
// the first line of "description" becomes "summary", spaces in keys
// become "-". A missing file yields an empty Control; data the decoder
// rejects is scanned by legacyParagraphFallback instead. No error is
// ever returned, matching ssm/control.py's load_legacy contract.
func LoadLegacy(path string) *Control {
	c := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}

	dec, err := control.NewDecoder(bytes.NewReader(data), nil)
	if err != nil {
		return legacyParagraphFallback(data)
	}

	var p legacyParagraph
	if err := dec.Decode(&p); err != nil {
		return legacyParagraphFallback(data)
	}

	for _, key := range p.Order {
		lines := strings.Split(p.Values[key], "\n")
		name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), " ", "-"))
		if name == "package" {
			name = "name"
		}
		putLegacy(c, name, lines)
	}
	return c
}

// legacyParagraphFallback re-derives the stanza by hand when the
// decoder's fixed-schema assumptions (it expects at least one tagged
// field to anchor a paragraph boundary) don't hold for an SSM legacy
// control file that is nothing but free-form keys. The scan follows
// the exact same rule the decoder itself uses: a line starting with a
// space continues the previous value, any other non-blank line starts
// "key: value".
func legacyParagraphFallback(data []byte) *Control {
	c := New()
	var key string
	var value []string

	flush := func() {
		if key != "" {
			putLegacy(c, key, value)
		}
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, " ") {
			value = append(value, line)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		flush()
		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(parts[0]), " ", "-"))
		if key == "package" {
			key = "name"
		}
		value = []string{strings.TrimSpace(parts[1])}
	}
	flush()
	return c
}

func putLegacy(c *Control, key string, lines []string) {
	if key == "description" {
		if len(lines) > 0 {
			c.Set("summary", lines[0])
		}
		rest := make([]string, 0, len(lines))
		for _, l := range lines[minInt(1, len(lines)):] {
			rest = append(rest, strings.TrimPrefix(l, " "))
		}
		c.Set(key, strings.Join(rest, "\n"))
		return
	}
	c.Set(key, strings.Join(lines, "\n"))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RequireField returns c's string value for key, failing with
// ValidationError if absent or empty — used after a legacy-to-current
// upgrade to enforce that "name" survived the conversion.
func (c *Control) RequireField(key string) (string, error) {
	v := c.GetString(key)
	if v == "" {
		return "", ssmerr.New(ssmerr.KindValidation, "control is missing required field %q", key)
	}
	return v, nil
}
