package extractor

import (
	"bytes"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// pidPattern matches product identifiers embedded in search result links,
// e.g. pid=F820650412493 or pid=9798400902550.
var pidPattern = regexp.MustCompile(`pid=([A-Za-z0-9]+)`)

// ExtractPIDs scans a search results page for product identifiers. Link
// hrefs are preferred; the raw markup is scanned as a fallback because the
// upstream also embeds PIDs in inline scripts. The result is de-duplicated
// preserving first-seen order.
func ExtractPIDs(htmlBody []byte) ([]string, error) {
	seen := make(map[string]bool)
	var pids []string
	add := func(text string) {
		for _, m := range pidPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				pids = append(pids, m[1])
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, err
	}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			add(href)
		}
	})
	add(string(htmlBody))

	return pids, nil
}
