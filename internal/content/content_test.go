package content

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		text   string
		images []string
	}{
		{
			name: "empty string",
			body: "",
			text: "",
		},
		{
			name: "plain text untouched",
			body: "hello there",
			text: "hello there",
		},
		{
			name: "plain text keeps internal whitespace",
			body: "  spaced   out  ",
			text: "  spaced   out  ",
		},
		{
			name:   "single url with surrounding text",
			body:   "a https://x.com/i.png b",
			text:   "a b",
			images: []string{"https://x.com/i.png"},
		},
		{
			name:   "url only",
			body:   "https://cdn/a.png",
			text:   "",
			images: []string{"https://cdn/a.png"},
		},
		{
			name:   "two urls no text",
			body:   "https://cdn/a.png https://cdn/b.png",
			text:   "",
			images: []string{"https://cdn/a.png", "https://cdn/b.png"},
		},
		{
			name:   "urls keep order of appearance",
			body:   "first https://cdn/1.png middle https://cdn/2.png last",
			text:   "first middle last",
			images: []string{"https://cdn/1.png", "https://cdn/2.png"},
		},
		{
			name:   "leading url",
			body:   "https://cdn/a.png caption",
			text:   "caption",
			images: []string{"https://cdn/a.png"},
		},
		{
			name: "insecure scheme stays text",
			body: "see http://x.com/i.png here",
			text: "see http://x.com/i.png here",
		},
		{
			name: "scheme mid-word is not a url",
			body: "weirdhttps://not-a-url token",
			text: "weirdhttps://not-a-url token",
		},
		{
			name:   "url split by whitespace yields two runs",
			body:   "https://a.com/x https://b.com/y",
			text:   "",
			images: []string{"https://a.com/x", "https://b.com/y"},
		},
		{
			name:   "newlines count as whitespace",
			body:   "line one\nhttps://cdn/i.png\nline two",
			text:   "line one line two",
			images: []string{"https://cdn/i.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.body)
			if got.Text != tt.text {
				t.Errorf("Text = %q, want %q", got.Text, tt.text)
			}
			if !reflect.DeepEqual(got.Images, tt.images) {
				t.Errorf("Images = %v, want %v", got.Images, tt.images)
			}
		})
	}
}

// TestParse_Idempotent verifies that re-parsing extracted text yields no
// further images and leaves the text unchanged.
func TestParse_Idempotent(t *testing.T) {
	bodies := []string{
		"",
		"plain text",
		"a https://x.com/i.png b",
		"https://cdn/a.png https://cdn/b.png",
		"mixed https://cdn/a.png tail",
		"weirdhttps://not-a-url token",
	}

	for _, body := range bodies {
		first := Parse(body)
		second := Parse(first.Text)
		if len(second.Images) != 0 {
			t.Errorf("Parse(%q).Text re-parsed to images %v, want none", body, second.Images)
		}
		if second.Text != first.Text {
			t.Errorf("Parse(%q).Text changed on re-parse: %q -> %q", body, first.Text, second.Text)
		}
	}
}

// TestParse_NoSchemeReturnsInputVerbatim covers the contract that inputs
// without the secure scheme pass through byte-for-byte.
func TestParse_NoSchemeReturnsInputVerbatim(t *testing.T) {
	inputs := []string{
		"tabs\tand\nnewlines",
		"   ",
		"unicode ок 你好",
	}
	for _, in := range inputs {
		got := Parse(in)
		if got.Text != in {
			t.Errorf("Parse(%q).Text = %q, want input verbatim", in, got.Text)
		}
		if got.Images != nil {
			t.Errorf("Parse(%q).Images = %v, want nil", in, got.Images)
		}
	}
}
