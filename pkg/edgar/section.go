package edgar

import (
	"html"
	"regexp"
	"strings"
)

// Well-known 10-K item numbers mapped to their canonical headings.
var itemTitles = map[string]string{
	"1":  "Business",
	"1A": "Risk Factors",
	"1B": "Unresolved Staff Comments",
	"2":  "Properties",
	"3":  "Legal Proceedings",
	"5":  "Market for Registrant's Common Equity",
	"7":  "Management's Discussion and Analysis",
	"7A": "Quantitative and Qualitative Disclosures About Market Risk",
	"8":  "Financial Statements and Supplementary Data",
	"9A": "Controls and Procedures",
	"10": "Directors, Executive Officers and Corporate Governance",
	"11": "Executive Compensation",
	"15": "Exhibits, Financial Statement Schedules",
}

// itemPattern matches 10-K/10-Q item headers in filing text. Handles
// variants like "Item 1A. Risk Factors", "ITEM 7 - MANAGEMENT'S
// DISCUSSION", "Item 7A: Quantitative Disclosures".
var itemPattern = regexp.MustCompile(
	`(?im)^[\s]*item\s+(\d{1,2}[A-C]?)\s*[:\-–—.\s]+\s*(.*)$`,
)

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	breakPattern  = regexp.MustCompile(`(?i)<(/p|/div|/tr|br[^>]*|/h\d)>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// DocSection is a contiguous slice of a filing keyed by its item header.
type DocSection struct {
	Item  string // e.g. "7A"
	Title string // heading text as it appears in the filing
	Body  string
}

// StripHTML converts an EDGAR HTML document to plain text. Block-level
// tags become newlines so item headers land at line starts, which the
// section splitter depends on.
func StripHTML(src string) string {
	src = scriptPattern.ReplaceAllString(src, "")
	src = breakPattern.ReplaceAllString(src, "\n")
	src = tagPattern.ReplaceAllString(src, " ")
	src = html.UnescapeString(src)
	src = strings.ReplaceAll(src, " ", " ")

	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spacePattern.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	return strings.TrimSpace(blankPattern.ReplaceAllString(out, "\n\n"))
}

// SplitSections splits plain filing text into item sections. Filings
// repeat item headers in the table of contents, so when the same item
// appears more than once the occurrence with the longest body wins.
// Returns nil when no item headers are found.
func SplitSections(text string) []DocSection {
	matches := itemPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	type header struct {
		item  string
		title string
		start int
		end   int
	}

	var headers []header
	for _, m := range matches {
		headers = append(headers, header{
			item:  strings.ToUpper(text[m[2]:m[3]]),
			title: strings.TrimSpace(text[m[4]:m[5]]),
			start: m[0],
			end:   m[1],
		})
	}

	best := make(map[string]DocSection)
	var order []string
	for i, h := range headers {
		var body string
		if i+1 < len(headers) {
			body = text[h.end:headers[i+1].start]
		} else {
			body = text[h.end:]
		}
		body = strings.TrimSpace(body)
		if body == "" {
			continue
		}

		prev, seen := best[h.item]
		if !seen {
			order = append(order, h.item)
		}
		if !seen || len(body) > len(prev.Body) {
			title := h.title
			if title == "" {
				title = itemTitles[h.item]
			}
			best[h.item] = DocSection{Item: h.item, Title: title, Body: body}
		}
	}

	sections := make([]DocSection, 0, len(order))
	for _, item := range order {
		sections = append(sections, best[item])
	}
	return sections
}

// SectionText returns the body of the named item, or the empty string.
func SectionText(sections []DocSection, item string) string {
	item = strings.ToUpper(item)
	for _, s := range sections {
		if s.Item == item {
			return s.Body
		}
	}
	return ""
}
