// Package content parses raw message bodies into display text and embedded
// image URLs. Messages embed images by including a bare https:// URL in the
// body; the parser extracts them so the renderer can load images separately
// from the surrounding text.
package content

import "strings"

// imageScheme marks the start of an embedded image URL. Only secure URLs are
// recognized; anything else stays part of the display text.
const imageScheme = "https://"

// Parsed is the derived view of a message body: the remaining display text
// and the embedded image URLs in order of appearance. It is recomputed from
// the raw body and never stored.
type Parsed struct {
	// Text is the message body with all image URLs removed. The surviving
	// fragments are joined with single spaces and trimmed.
	Text string

	// Images holds every extracted URL in order of appearance.
	// Nil when the body contains no image URLs.
	Images []string
}

// Parse splits a raw message body into display text and image URLs.
//
// Every maximal run of non-whitespace characters that starts with the secure
// URL scheme is classified as an image URL. All other runs are joined with a
// single space to form the text. Parse is total: it never fails, and any
// input (including empty strings or bodies that are all URLs) produces a
// well-defined result. Re-parsing the returned Text yields no further images.
func Parse(body string) Parsed {
	// Fast path: no scheme substring means no images and the body is
	// returned untouched (whitespace preserved).
	if !strings.Contains(body, imageScheme) {
		return Parsed{Text: body}
	}

	var (
		images []string
		words  []string
	)

	for _, field := range strings.Fields(body) {
		if strings.HasPrefix(field, imageScheme) {
			images = append(images, field)
			continue
		}
		words = append(words, field)
	}

	if images == nil {
		// The scheme appeared mid-word (e.g. "xhttps://...") so no field
		// qualified; keep the original body intact.
		return Parsed{Text: body}
	}

	return Parsed{
		Text:   strings.Join(words, " "),
		Images: images,
	}
}
