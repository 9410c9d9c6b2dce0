package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/maelgoujon/moodle-resource-downloader/pkg/extractor"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/quiz"
)

const (
	maxPages    = 200
	maxFileSize = 50 * 1024 * 1024 // 50MB
)

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	rules   *quiz.Rules
	engine  *extractor.Engine
	version string
}

// NewHandlers creates a new handlers instance
func NewHandlers(rules *quiz.Rules, engine *extractor.Engine, version string) *Handlers {
	return &Handlers{rules: rules, engine: engine, version: version}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "moodle-dl",
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	})
}

// Rules returns the active extraction rule set.
func (h *Handlers) Rules(c *fiber.Ctx) error {
	return c.JSON(h.rules.Source())
}

// ExtractQuizRequest carries the rendered HTML of every page of one quiz
// attempt, in page order.
type ExtractQuizRequest struct {
	QuizTitle          string   `json:"quiz_title"`
	SourceURL          string   `json:"source_url"`
	Pages              []string `json:"pages"`
	LowercaseQuestions bool     `json:"lowercase_questions"`
}

// ExtractQuiz runs question extraction over the submitted pages. Pages are
// accepted as a JSON body or as multipart "page" files.
func (h *Handlers) ExtractQuiz(c *fiber.Ctx) error {
	var req ExtractQuizRequest
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if err := h.parseMultipartPages(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid multipart form",
				"details": err.Error(),
			})
		}
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if len(req.Pages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one page is required",
		})
	}
	if len(req.Pages) > maxPages {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Too many pages: %d. Maximum is %d", len(req.Pages), maxPages),
		})
	}

	docs := make([]*goquery.Selection, 0, len(req.Pages))
	for i, page := range req.Pages {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   fmt.Sprintf("Page %d is not valid HTML", i),
				"details": err.Error(),
			})
		}
		docs = append(docs, doc.Selection)
	}

	pipeline := quiz.NewPipeline(h.rules, quiz.NormalizerConfig{LowercaseQuestions: req.LowercaseQuestions})
	questions := pipeline.Run(docs...)
	if questions == nil {
		questions = []quiz.QuestionRecord{}
	}

	title := req.QuizTitle
	if title == "" {
		title = pageTitle(docs[0])
	}

	log.Info().
		Str("quiz", title).
		Int("pages", len(docs)).
		Int("questions", len(questions)).
		Msg("Quiz extracted")

	return c.JSON(quiz.QuizResult{
		QuizTitle: title,
		SourceURL: req.SourceURL,
		Questions: questions,
	})
}

func (h *Handlers) parseMultipartPages(c *fiber.Ctx, req *ExtractQuizRequest) error {
	form, err := c.MultipartForm()
	if err != nil {
		return err
	}
	req.QuizTitle = c.FormValue("quiz_title")
	req.SourceURL = c.FormValue("source_url")
	req.LowercaseQuestions = c.FormValue("lowercase_questions") == "true"

	for _, fh := range form.File["page"] {
		content, err := readUpload(fh)
		if err != nil {
			return err
		}
		req.Pages = append(req.Pages, string(content))
	}
	return nil
}

// TextResponse is the plain text of an uploaded document.
type TextResponse struct {
	Filename string            `json:"filename"`
	FileType string            `json:"file_type"`
	Size     int64             `json:"size"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// ExtractText returns the text of an uploaded course document.
func (h *Handlers) ExtractText(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "No file uploaded or invalid file format",
			"details": err.Error(),
		})
	}

	ext := extractor.Kind(file.Filename)
	if ext == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File must have a valid extension",
		})
	}
	if !h.engine.Supports(ext) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": fmt.Sprintf("Unsupported file type: %s", ext),
		})
	}

	content, err := readUpload(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Failed to read file content",
			"details": err.Error(),
		})
	}

	text, metadata, err := h.engine.Extract(c.UserContext(), content, ext)
	if err != nil {
		log.Warn().Err(err).Str("file", file.Filename).Msg("Text extraction failed")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "Text extraction failed",
			"details": err.Error(),
		})
	}

	return c.JSON(TextResponse{
		Filename: file.Filename,
		FileType: ext,
		Size:     file.Size,
		Text:     text,
		Metadata: metadata,
	})
}

func pageTitle(doc *goquery.Selection) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes. Maximum size is %d bytes (50MB)", fh.Size, maxFileSize)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
