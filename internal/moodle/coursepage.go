package moodle

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	sectionClass        = regexp.MustCompile(`section`)
	sectionTitleClass   = regexp.MustCompile(`sectionname|accesshide`)
	sectionContentClass = regexp.MustCompile(`section|img-text|topics|ctopics`)
)

// Outline is the structure of a course page: its sections and the
// activities they list.
type Outline struct {
	Sections []Section
	// Fallback holds the main content text when the page has no sections.
	Fallback string
}

// Section is one course section.
type Section struct {
	Title string
	Items []OutlineItem
}

// OutlineItem is an activity (with a URL) or a plain label.
type OutlineItem struct {
	Label string
	URL   string
}

// ParseOutline reads the sections of a course page.
func ParseOutline(doc *goquery.Selection) *Outline {
	outline := &Outline{}

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if !hasClassMatching(li, sectionClass) {
			return
		}
		var section Section
		if title := findByClass(li, "*", sectionTitleClass); title != nil {
			section.Title = strings.TrimSpace(title.Text())
		}

		content := findByClass(li, "ul", sectionContentClass)
		if content == nil {
			if div := li.Find("div.content").First(); div.Length() > 0 {
				content = div
			}
		}
		if content != nil {
			content.ChildrenFiltered("li").Each(func(_ int, item *goquery.Selection) {
				if it, ok := outlineItem(item); ok {
					section.Items = append(section.Items, it)
				}
			})
		}
		outline.Sections = append(outline.Sections, section)
	})

	if len(outline.Sections) == 0 {
		main := doc.Find(`div[role="main"]`).First()
		if main.Length() == 0 {
			main = doc.Find("div.page-content").First()
		}
		if main.Length() > 0 {
			outline.Fallback = strings.Join(textLines(main), "\n")
		}
	}
	return outline
}

func outlineItem(li *goquery.Selection) (OutlineItem, bool) {
	activity := li.Find("div.activityinstance").First()
	if activity.Length() == 0 {
		label := joinedText(li, " ")
		return OutlineItem{Label: label}, label != ""
	}

	label := joinedText(activity, " ")
	if alt, ok := activity.Find("img.iconlarge").First().Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		label += " _" + strings.TrimSpace(alt) + "_"
	}
	href, _ := activity.Find("a[href]").First().Attr("href")
	return OutlineItem{Label: label, URL: strings.TrimSpace(href)}, label != ""
}

// Links returns the activities that carry a URL.
func (o *Outline) Links() []OutlineItem {
	var links []OutlineItem
	for _, s := range o.Sections {
		for _, it := range s.Items {
			if it.URL != "" {
				links = append(links, it)
			}
		}
	}
	return links
}

// Markdown renders the outline. local maps an activity URL to the file it
// was saved as; activities without a local file link to a name derived
// from their label.
func (o *Outline) Markdown(local func(url string) (string, bool)) string {
	if len(o.Sections) == 0 {
		return o.Fallback
	}

	var lines []string
	for _, s := range o.Sections {
		if s.Title != "" {
			lines = append(lines, "# "+s.Title)
		}
		for _, it := range s.Items {
			if it.URL == "" {
				lines = append(lines, "- "+it.Label)
				continue
			}
			target := strings.ReplaceAll(it.Label, " ", "_") + ".html"
			if local != nil {
				if file, ok := local(it.URL); ok {
					target = file
				}
			}
			lines = append(lines, "- ["+it.Label+"]("+target+")")
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func hasClassMatching(s *goquery.Selection, re *regexp.Regexp) bool {
	class, _ := s.Attr("class")
	for _, token := range strings.Fields(class) {
		if re.MatchString(token) {
			return true
		}
	}
	return false
}

func findByClass(s *goquery.Selection, tag string, re *regexp.Regexp) *goquery.Selection {
	var found *goquery.Selection
	s.Find(tag).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if hasClassMatching(c, re) {
			found = c
			return false
		}
		return true
	})
	return found
}

// joinedText joins the trimmed text nodes of s with sep.
func joinedText(s *goquery.Selection, sep string) string {
	return strings.Join(textLines(s), sep)
}

func textLines(s *goquery.Selection) []string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := strings.TrimSpace(c.Text()); t != "" {
				parts = append(parts, t)
			}
		case "script", "style", "#comment":
		default:
			parts = append(parts, textLines(c)...)
		}
	})
	return parts
}
