package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skipped holds the nodes whose text never reaches a chunk.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"#comment": true,
}

// FullText returns the visible text under s, one space between text nodes.
func FullText(s *goquery.Selection) string {
	var b strings.Builder
	collectText(s, &b)
	return b.String()
}

func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		switch {
		case skipped[name]:
		case name == "#text":
			text := strings.Join(strings.Fields(node.Text()), " ")
			if text == "" {
				return
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		default:
			collectText(node, b)
		}
	})
}

// Split cuts text into windows of at most size runes; neighbouring windows share
// overlap runes. An overlap outside [0, size) is treated as none.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; ; start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			return chunks
		}
	}
}
