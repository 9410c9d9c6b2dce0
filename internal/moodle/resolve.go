package moodle

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

var resourceRedirect = regexp.MustCompile(`/mod/resource/.*&redirect=1`)

// ResolveFinalURL fetches an activity page and returns the URL of the file
// or external target behind it.
func (c *Client) ResolveFinalURL(ctx context.Context, activityURL string) (string, error) {
	page, err := c.Get(ctx, activityURL)
	if err != nil {
		return "", err
	}
	return FinalURL(page, activityURL)
}

// FinalURL inspects an already fetched activity page. The checks run in
// order: resource redirect link, mod/page URL, urlworkaround external link,
// media iframe, direct file link, audio or video source, and finally the
// requested URL when it already names a file.
func FinalURL(page *Page, requested string) (string, error) {
	var doc *goquery.Document
	if page != nil && page.IsHTML() {
		doc, _ = page.Document()
	}

	if doc != nil {
		if href, ok := firstHref(doc, "a[href]", func(h string) bool { return resourceRedirect.MatchString(h) }); ok {
			final := page.Resolve(href)
			log.Debug().Str("url", requested).Str("final_url", final).Msg("Resource redirect link found")
			return final, nil
		}
	}

	if strings.Contains(requested, "mod/page/view.php") {
		return requested, nil
	}

	if doc != nil {
		if href, ok := doc.Find("div.urlworkaround a[href]").First().Attr("href"); ok {
			final := page.Resolve(href)
			log.Debug().Str("url", requested).Str("final_url", final).Msg("External URL found")
			return final, nil
		}

		if src, ok := doc.Find("iframe[src]").First().Attr("src"); ok {
			if final := page.Resolve(src); mediaExtPattern.MatchString(urlPath(final)) {
				log.Debug().Str("url", requested).Str("final_url", final).Msg("Media iframe found")
				return final, nil
			}
		}

		if href, ok := firstHref(doc, "a[href]", func(h string) bool { return IsFileURL(page.Resolve(h)) }); ok {
			final := page.Resolve(href)
			log.Debug().Str("url", requested).Str("final_url", final).Msg("File link found")
			return final, nil
		}

		if src, ok := doc.Find("source[src]").First().Attr("src"); ok {
			final := page.Resolve(src)
			log.Debug().Str("url", requested).Str("final_url", final).Msg("Media source found")
			return final, nil
		}
	}

	if IsFileURL(requested) {
		return requested, nil
	}

	log.Warn().Str("url", requested).Msg("Could not find final URL")
	return "", ErrNoFinalURL
}

func firstHref(doc *goquery.Document, selector string, match func(string) bool) (string, bool) {
	var found string
	doc.Find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if match(href) {
			found = href
			return false
		}
		return true
	})
	return found, found != ""
}
