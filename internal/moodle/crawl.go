package moodle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

// Resource is a downloadable activity found during the crawl. Folder is
// relative to the output root.
type Resource struct {
	URL    string   `json:"url"`
	Folder string   `json:"folder"`
	Kind   LinkKind `json:"kind"`
	// File is set when the crawl already saved the content.
	File string `json:"file,omitempty"`
}

// ActivityLink is a quiz or H5P activity found during the crawl.
type ActivityLink struct {
	URL    string `json:"url"`
	Folder string `json:"folder"`
	Title  string `json:"title,omitempty"`
}

// SavedPage is a crawled page written to disk. Its Markdown rendering is
// written once resource downloads are known.
type SavedPage struct {
	URL          string
	Folder       string
	HTMLFile     string
	MarkdownFile string
	Outline      *Outline
}

// CrawlResult collects everything found below a course page.
type CrawlResult struct {
	CourseTitle string
	CourseDir   string
	Resources   []Resource
	Quizzes     []ActivityLink
	H5P         []ActivityLink
	Pages       []SavedPage
}

// Crawler walks a course page and the folders and pages it links to.
type Crawler struct {
	client *Client
	store  storage.Store

	visited map[string]bool
	seen    map[string]bool
	result  *CrawlResult
}

// NewCrawler creates a crawler writing pages into store.
func NewCrawler(client *Client, store storage.Store) *Crawler {
	return &Crawler{client: client, store: store}
}

// Crawl fetches courseURL and recurses into folders and pages. A failure on
// the course page itself is returned; failures below it are logged.
func (c *Crawler) Crawl(ctx context.Context, courseURL string) (*CrawlResult, error) {
	c.visited = make(map[string]bool)
	c.seen = make(map[string]bool)
	c.result = &CrawlResult{}

	if err := c.crawl(ctx, courseURL, ""); err != nil {
		return nil, err
	}

	log.Info().
		Str("url", courseURL).
		Int("resources", len(c.result.Resources)).
		Int("quizzes", len(c.result.Quizzes)).
		Int("h5p", len(c.result.H5P)).
		Int("pages", len(c.result.Pages)).
		Msg("Course crawl finished")
	return c.result, nil
}

func (c *Crawler) crawl(ctx context.Context, pageURL, baseFolder string) error {
	key := StripFragment(pageURL)
	if c.visited[key] {
		return nil
	}
	c.visited[key] = true

	log.Info().Str("url", pageURL).Msg("Crawling")
	page, err := c.client.Get(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	doc, err := page.Document()
	if err != nil {
		return err
	}

	title := page.Title()
	if title == "" {
		title = "course"
	}
	safeTitle := SafeName(title)
	folder := filepath.Join(baseFolder, safeTitle)

	kind := Classify(key)
	if c.result.CourseDir == "" {
		c.result.CourseTitle = title
		c.result.CourseDir = folder
	}

	saved, err := c.savePage(ctx, page, doc, key, kind, folder, safeTitle)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Failed to save page")
	} else {
		c.result.Pages = append(c.result.Pages, saved)
	}

	if kind == KindPage {
		c.addResource(Resource{URL: key, Folder: folder, Kind: KindPage, File: saved.HTMLFile})
		return nil
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		href, _ := a.Attr("href")
		if skipHref(href) {
			return
		}
		full := page.Resolve(href)
		bare := StripFragment(full)
		if c.visited[bare] {
			return
		}
		text := strings.TrimSpace(a.Text())

		switch Classify(bare) {
		case KindH5P:
			if text == "" {
				text = "H5P Activity"
			}
			c.addActivity(&c.result.H5P, "h5p", ActivityLink{URL: full, Folder: folder, Title: text})
		case KindQuiz:
			c.addActivity(&c.result.Quizzes, "quiz", ActivityLink{URL: bare, Folder: folder, Title: text})
		case KindFolder, KindPage:
			if err := c.crawl(ctx, bare, folder); err != nil {
				log.Warn().Err(err).Str("url", bare).Msg("Skipping linked page")
			}
		case KindURL, KindResource, KindFile:
			c.addResource(Resource{URL: bare, Folder: folder, Kind: Classify(bare)})
		default:
			log.Debug().Str("url", full).Msg("Ignored link")
		}
	})
	return ctx.Err()
}

func (c *Crawler) savePage(ctx context.Context, page *Page, doc *goquery.Document, pageURL string, kind LinkKind, folder, safeTitle string) (SavedPage, error) {
	base := safeTitle
	switch {
	case kind == KindFolder:
		base = "dossier_" + safeTitle
	case strings.Contains(pageURL, "course/view.php"):
		base = "presentation_cours"
	}

	saved := SavedPage{
		URL:          pageURL,
		Folder:       folder,
		HTMLFile:     base + ".html",
		MarkdownFile: base + ".md",
		Outline:      ParseOutline(doc.Selection),
	}

	content := page.Body
	if kind == KindPage {
		main := doc.Find(`div[role="main"]`).First()
		if main.Length() == 0 {
			main = doc.Find("div.page-content").First()
		}
		if main.Length() > 0 {
			if html, err := goquery.OuterHtml(main); err == nil {
				content = []byte(html)
			}
		}
	}

	if looksLikeLoginForm(doc) {
		log.Warn().
			Str("url", pageURL).
			Str("file", filepath.Join(folder, saved.HTMLFile)).
			Msg("Saved page looks like a login form, check authentication and course access")
	}

	if err := c.store.WriteFile(ctx, filepath.Join(folder, saved.HTMLFile), content); err != nil {
		return saved, err
	}
	log.Info().Str("file", filepath.Join(folder, saved.HTMLFile)).Msg("Page saved")
	return saved, nil
}

func looksLikeLoginForm(doc *goquery.Document) bool {
	if doc.Find(`input[name="logintoken"]`).Length() > 0 {
		return true
	}
	action, _ := doc.Find("form[action]").First().Attr("action")
	return strings.Contains(strings.ToLower(action), "login")
}

func (c *Crawler) addResource(r Resource) {
	key := "resource|" + r.URL + "|" + r.Folder
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.result.Resources = append(c.result.Resources, r)
	log.Info().Str("url", r.URL).Str("kind", string(r.Kind)).Msg("Resource found")
}

func (c *Crawler) addActivity(list *[]ActivityLink, kind string, link ActivityLink) {
	key := kind + "|" + link.URL
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	*list = append(*list, link)
	log.Info().Str("url", link.URL).Str("title", link.Title).Msgf("%s found", kind)
}

// WriteMarkdown renders the outline of every saved page, linking activities
// to the files they were downloaded as.
func (c *Crawler) WriteMarkdown(ctx context.Context, pages []SavedPage, local map[string]string) error {
	lookup := func(u string) (string, bool) {
		f, ok := local[StripFragment(u)]
		return f, ok
	}
	for _, p := range pages {
		md := p.Outline.Markdown(func(u string) (string, bool) {
			if f, ok := lookup(resolveRef(parseURL(p.URL), u)); ok {
				if rel, err := filepath.Rel(p.Folder, f); err == nil {
					return filepath.ToSlash(rel), true
				}
			}
			return "", false
		})
		path := filepath.Join(p.Folder, p.MarkdownFile)
		if err := c.store.WriteFile(ctx, path, []byte(md)); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Info().Str("file", path).Msg("Page Markdown saved")
	}
	return nil
}
