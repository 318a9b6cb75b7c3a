package scraper

import "fmt"

// Prober counts live DOM matches for an XPath locator. The production
// prober queries the page; tests supply fixed answers.
type Prober interface {
	Count(xpath string) (int, error)
}

// PriorityFor returns the candidate attribute order used to synthesize a
// selector for tag, most specific first. "text" is a pseudo-attribute
// matched with contains(). Tags without a defined order synthesize
// nothing.
func PriorityFor(tag string) []string {
	switch tag {
	case "input", "textarea":
		return []string{"data-testid", "id", "name", "type"}
	case "button":
		return []string{"id", "name", "text", "type"}
	case "label":
		return []string{"id", "text"}
	case "div":
		return []string{"data-testid", "id"}
	default:
		return nil
	}
}

// Locator builds the XPath expression for one tag/attribute candidate.
func Locator(tag, attr, value string) string {
	if attr == "text" {
		return fmt.Sprintf("//%s[contains(text(),'%s')]", tag, value)
	}
	return fmt.Sprintf("//%s[@%s='%s']", tag, attr, value)
}

// Synthesize derives the narrowest uniquely-matching locator for an
// element of tag with the given raw attributes. Candidates are tried in
// priority order; a candidate is accepted only when the live DOM matches
// it exactly once. Probe failures skip to the next candidate. When no
// candidate is unique the element keeps no selector, which is an expected
// outcome rather than an error.
func Synthesize(tag string, attrs map[string]string, priorities []string, p Prober) (string, bool) {
	for _, attr := range priorities {
		value := attrs[attr]
		if value == "" {
			continue
		}
		locator := Locator(tag, attr, value)
		n, err := p.Count(locator)
		if err != nil {
			continue
		}
		if n == 1 {
			return locator, true
		}
	}
	return "", false
}
