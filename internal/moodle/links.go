package moodle

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkKind classifies a link found on a course page.
type LinkKind string

const (
	KindQuiz     LinkKind = "quiz"
	KindH5P      LinkKind = "h5p"
	KindFolder   LinkKind = "folder"
	KindPage     LinkKind = "page"
	KindURL      LinkKind = "url"
	KindResource LinkKind = "resource"
	KindFile     LinkKind = "file"
	KindOther    LinkKind = ""
)

var (
	fileExtPattern  = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?|pptx?|zip|txt|jpg|jpeg|png|mp4|webm|ogg|mov|avi)$`)
	mediaExtPattern = regexp.MustCompile(`(?i)\.(pdf|mp4|webm|ogg|mov|avi)$`)
)

// Classify maps a course link to the activity it points at.
func Classify(link string) LinkKind {
	u := StripFragment(link)
	switch {
	case strings.Contains(u, "mod/quiz/view.php"):
		return KindQuiz
	case strings.Contains(u, "mod/h5pactivity/view.php"), strings.Contains(u, "mod/hvp/view.php"):
		return KindH5P
	case strings.Contains(u, "mod/folder/view.php"):
		return KindFolder
	case strings.Contains(u, "mod/page/view.php"):
		return KindPage
	case strings.Contains(u, "mod/url/view.php"):
		return KindURL
	case strings.Contains(u, "mod/resource/view.php"):
		return KindResource
	case IsFileURL(u):
		return KindFile
	}
	return KindOther
}

// IsFileURL reports whether the URL path ends with a known document or
// media extension.
func IsFileURL(link string) bool {
	return fileExtPattern.MatchString(urlPath(link))
}

// StripFragment drops the #fragment of a URL.
func StripFragment(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		return link[:i]
	}
	return link
}

func urlPath(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return u.Path
}

// skipHref reports links that never lead to course content.
func skipHref(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	return h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "javascript:") || strings.HasPrefix(h, "mailto:")
}
