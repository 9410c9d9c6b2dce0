package h5p

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/internal/moodle"
	"github.com/maelgoujon/moodle-resource-downloader/internal/storage"
)

const (
	TypePackage = "h5p"
	TypeHTML    = "html"

	maxPackageSize = 512 << 20
)

var (
	packageLink  = regexp.MustCompile(`\.h5p($|\?)`)
	videoExt     = regexp.MustCompile(`(?i)\.(mp4|webm|ogg|mov|avi)$`)
	embedPattern = regexp.MustCompile(`h5p/embed|embed\.php`)
)

// Activity is the outcome for one H5P activity. File and Folder are
// relative to the output root.
type Activity struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	File         string   `json:"file"`
	Folder       string   `json:"folder"`
	Type         string   `json:"type"`
	Text         string   `json:"text"`
	Interactions []string `json:"interactions"`
	Markdown     []string `json:"markdown,omitempty"`
	Media        []string `json:"media,omitempty"`
}

// Downloader fetches H5P activities through an authenticated session.
type Downloader struct {
	client *moodle.Client
	store  storage.Store
}

// NewDownloader creates an H5P downloader.
func NewDownloader(client *moodle.Client, store storage.Store) *Downloader {
	return &Downloader{client: client, store: store}
}

// Download saves one activity into <folder>/<title>/. When the page links
// an .h5p package, directly or through an embed iframe, the package is
// downloaded and rendered to Markdown. Otherwise the page is saved as
// <title>_H5P.html together with the media it embeds.
func (d *Downloader) Download(ctx context.Context, link moodle.ActivityLink) (*Activity, error) {
	page, err := d.client.Get(ctx, link.URL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	safe := moodle.SafeName(link.Title)
	if safe == "" {
		safe = "h5p_activity"
	}
	dir := filepath.Join(link.Folder, safe)
	activity := &Activity{Title: link.Title, URL: link.URL, Folder: dir, Interactions: []string{}}

	if pkgURL := packageURL(page, doc); pkgURL != "" {
		activity.Type = TypePackage
		activity.File = filepath.Join(dir, safe+".h5p")
		if err := d.downloadPackage(ctx, activity, pkgURL, link.Title); err != nil {
			return nil, err
		}
		return activity, nil
	}

	activity.Type = TypeHTML
	activity.File = filepath.Join(dir, safe+"_H5P.html")
	if err := d.store.WriteFile(ctx, activity.File, page.Body); err != nil {
		return nil, err
	}
	log.Info().Str("url", link.URL).Str("file", activity.File).Msg("H5P page saved")

	activity.Text, activity.Interactions = PageText(doc.Selection)
	for _, src := range mediaCandidates(page, doc) {
		if name, ok := d.downloadMedia(ctx, src, dir); ok {
			activity.Media = append(activity.Media, filepath.Join(dir, name))
		}
	}
	return activity, nil
}

func (d *Downloader) downloadPackage(ctx context.Context, activity *Activity, pkgURL, title string) error {
	if !d.store.Exists(activity.File) {
		resp, err := d.client.Open(ctx, pkgURL)
		if err != nil {
			return fmt.Errorf("failed to download h5p package: %w", err)
		}
		_, err = d.store.WriteStream(ctx, activity.File, resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		log.Info().Str("url", pkgURL).Str("file", activity.File).Msg("H5P package downloaded")
	} else {
		log.Info().Str("file", activity.File).Msg("H5P package already downloaded")
	}

	data, err := readFile(d.store, activity.File)
	if err != nil {
		return err
	}
	pkg, err := ReadPackage(data)
	if err != nil {
		log.Warn().Err(err).Str("file", activity.File).Msg("Could not render H5P package")
		return nil
	}
	files, err := pkg.Render(ctx, d.store, activity.Folder, title)
	if err != nil {
		return err
	}
	activity.Markdown = files
	log.Info().
		Str("file", activity.File).
		Str("library", pkg.MainLibrary).
		Int("markdown_files", len(files)).
		Msg("H5P package rendered")
	return nil
}

// packageURL finds a direct .h5p link or the url= parameter of an embed
// iframe.
func packageURL(page *moodle.Page, doc *goquery.Document) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if packageLink.MatchString(href) {
			found = page.Resolve(href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	doc.Find("iframe[src]").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		src, _ := f.Attr("src")
		if !strings.Contains(src, "embed.php") {
			return true
		}
		if u, err := url.Parse(page.Resolve(src)); err == nil {
			if target := u.Query().Get("url"); target != "" {
				found = page.Resolve(target)
				return false
			}
		}
		return true
	})
	return found
}

func mediaCandidates(page *moodle.Page, doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find("iframe[src], video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		full := page.Resolve(src)
		if src == "" || seen[full] || embedPattern.MatchString(full) {
			return
		}
		seen[full] = true
		out = append(out, full)
	})
	return out
}

// downloadMedia saves a media file into dir and returns its name. Vimeo
// players are resolved to their best progressive rendition; other URLs are
// kept only when they serve video or binary content.
func (d *Downloader) downloadMedia(ctx context.Context, mediaURL, dir string) (string, bool) {
	if strings.Contains(mediaURL, "vimeo.com") {
		if name, ok := d.downloadVimeo(ctx, mediaURL, dir); ok {
			return name, true
		}
	}

	resp, err := d.client.Open(ctx, mediaURL)
	if err != nil {
		log.Warn().Err(err).Str("url", mediaURL).Msg("Failed to download media")
		return "", false
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "video") && !videoExt.MatchString(mediaURL) && strings.HasPrefix(ct, "text") {
		log.Debug().Str("url", mediaURL).Str("content_type", ct).Msg("Skipping non-media URL")
		return "", false
	}

	name := moodle.CleanFilename(resp.Request.URL.String(), resp.Header, "")
	return name, d.saveStream(ctx, filepath.Join(dir, name), mediaURL, resp.Body)
}

func (d *Downloader) saveStream(ctx context.Context, dest, src string, body io.Reader) bool {
	if d.store.Exists(dest) {
		log.Debug().Str("file", dest).Msg("Media already exists")
		return true
	}
	if _, err := d.store.WriteStream(ctx, dest, body); err != nil {
		log.Warn().Err(err).Str("url", src).Msg("Failed to save media")
		return false
	}
	log.Info().Str("url", src).Str("file", dest).Msg("Media downloaded")
	return true
}

func readFile(store storage.Store, rel string) ([]byte, error) {
	path := filepath.Join(store.Root(), rel)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxPackageSize {
		return nil, fmt.Errorf("h5p package too large: %d bytes", info.Size())
	}
	return os.ReadFile(path)
}
