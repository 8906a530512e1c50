package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

const maxFetchBytes = 5 << 20

type ExtractedContent struct {
	Title string
	Text  string
}

// ContentExtractor turns knowledge sources into plain text.
type ContentExtractor interface {
	ExtractURL(ctx context.Context, rawURL string) (*ExtractedContent, error)
	ExtractPDF(data []byte) (*ExtractedContent, error)
}

// ContentExtractionService fetches web pages and parses PDFs for the knowledge pipeline
type ContentExtractionService struct {
	httpClient *http.Client
}

func NewContentExtractionService(httpClient *http.Client) *ContentExtractionService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ContentExtractionService{httpClient: httpClient}
}

// ExtractURL downloads a page and strips it to its readable text. YouTube watch pages
// go through the same path and yield the title and description.
func (s *ContentExtractionService) ExtractURL(ctx context.Context, rawURL string) (*ExtractedContent, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "InterchatKnowledgeBot/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code when fetching URL: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxFetchBytes), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(article.Excerpt)
	}
	if text == "" {
		return nil, fmt.Errorf("no readable text found at %s", rawURL)
	}
	return &ExtractedContent{Title: strings.TrimSpace(article.Title), Text: text}, nil
}

func (s *ContentExtractionService) ExtractPDF(data []byte) (*ExtractedContent, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var content strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		content.WriteString(text)
		content.WriteString("\n\n")
	}

	if strings.TrimSpace(content.String()) == "" {
		return nil, fmt.Errorf("no text content extracted from PDF")
	}

	return &ExtractedContent{Text: content.String()}, nil
}
