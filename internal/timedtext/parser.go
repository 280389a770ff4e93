// Package timedtext converts raw caption markup into plain text.
//
// The input is the XML-like timed-text format served for caption tracks:
// timestamped <text> (or, for the srv3 variant, <p>) elements whose bodies
// carry HTML-encoded entities such as &amp;#39;.
package timedtext

import (
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strings"
)

// ErrNoText is returned when the markup cannot be parsed or yields
// no transcript text at all. Callers must treat it as "no transcript
// produced", not as an empty-but-valid transcript.
var ErrNoText = errors.New("timedtext: no transcript text")

// Parse walks the markup as a generic token stream, collects the character
// data of every text-bearing element, decodes its entities and joins the
// fragments with single spaces. The result has all whitespace runs collapsed
// and both ends trimmed.
func Parse(raw string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	// Caption files are not strict XML; be permissive about entities the
	// decoder does not know and decode them ourselves below.
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var fragments []string
	depth := 0 // nesting depth inside a text-bearing element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", ErrNoText
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 || isTextElement(t.Name.Local) {
				depth++
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		case xml.CharData:
			if depth == 0 {
				continue
			}
			s := html.UnescapeString(string(t))
			if strings.TrimSpace(s) != "" {
				fragments = append(fragments, s)
			}
		}
	}

	out := strings.Join(strings.Fields(strings.Join(fragments, " ")), " ")
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}

func isTextElement(name string) bool {
	return name == "text" || name == "p"
}
