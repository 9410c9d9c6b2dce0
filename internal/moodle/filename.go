package moodle

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)
	dispositionName = regexp.MustCompile(`filename="?([^";]+)"?`)
	courseIDParam   = regexp.MustCompile(`id=(\d+)`)
)

// preferred extensions for types where the system MIME table is ambiguous
var contentTypeExt = map[string]string{
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"text/plain":            ".txt",
	"application/pdf":       ".pdf",
	"image/jpeg":            ".jpg",
	"image/png":             ".png",
	"video/mp4":             ".mp4",
	"application/zip":       ".zip",
	"application/msword":    ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
}

// SafeName replaces every character that is not a letter, digit, '_', '-'
// or '.' with '_'.
func SafeName(s string) string {
	return unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "_")
}

// CleanFilename picks a local name for a downloaded URL. The URL basename is
// used unless Content-Disposition names the file. When neither yields a name
// with an extension, the page title, the id= query value or a hash of the
// URL is combined with an extension derived from the content type.
func CleanFilename(rawURL string, header http.Header, title string) string {
	name := urlBasename(rawURL)

	if header != nil {
		if disp := header.Get("Content-Disposition"); disp != "" {
			if n := dispositionFilename(disp); n != "" {
				name = n
			}
		}
	}

	if name == "" || !strings.Contains(name, ".") || strings.Contains(name, "view.php") {
		ext := extensionFor(header)
		switch {
		case title != "":
			name = title + ext
		default:
			name = fallbackBase(rawURL) + ext
		}
	}

	return SafeName(name)
}

func urlBasename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}

func dispositionFilename(disp string) string {
	if _, params, err := mime.ParseMediaType(disp); err == nil {
		if n := params["filename"]; n != "" {
			return n
		}
	}
	if m := dispositionName.FindStringSubmatch(disp); m != nil {
		if unescaped, err := url.QueryUnescape(m[1]); err == nil {
			return unescaped
		}
		return m[1]
	}
	return ""
}

func extensionFor(header http.Header) string {
	if header == nil {
		return ".bin"
	}
	ct := mediaType(header.Get("Content-Type"))
	if ct == "" {
		return ".bin"
	}
	if ext, ok := contentTypeExt[ct]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func fallbackBase(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if m := courseIDParam.FindStringSubmatch(u.RawQuery); m != nil {
			return "page_" + m[1]
		}
	}
	sum := sha256.Sum256([]byte(rawURL))
	return "file_" + hex.EncodeToString(sum[:])[:12]
}

func mediaType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// isDownloadable reports whether a response is a file rather than a web
// page reached through an external link.
func isDownloadable(contentType, finalURL string) bool {
	ct := mediaType(contentType)
	if ct == "" {
		return IsFileURL(finalURL)
	}
	if ct == "text/html" || ct == "application/xhtml+xml" {
		return IsFileURL(finalURL)
	}
	for _, prefix := range []string{"application/", "text/", "image/", "audio/", "video/"} {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}
