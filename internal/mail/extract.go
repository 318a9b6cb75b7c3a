package mail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// codePattern matches the 4 to 8 digit one-time codes verification
// mails carry
var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

// ExtractLinks returns the anchor targets of an HTML body in document
// order, deduplicated. Mailto links are not actionable and are dropped.
func ExtractLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html body: %w", err)
	}

	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "mailto:") || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links, nil
}

// ExtractCode finds the first one-time code in a message body
func ExtractCode(body string) (string, bool) {
	code := codePattern.FindString(body)
	return code, code != ""
}
