package newspage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"LinkPilot/internal/domain"
)

const maxHeadlines = 5

// Scanner discovers trends by scraping headline listings from a configured
// news page.
type Scanner struct {
	client *http.Client
}

// NewScanner wires an HTTP client; a default one is used when nil.
func NewScanner(client *http.Client) *Scanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Scanner{client: client}
}

// Name identifies the strategy inside the discovery registry.
func (s *Scanner) Name() string {
	return "newspage"
}

// Find fetches the target URL and condenses its top headlines into a
// trend report. The query string acts as a keyword filter when set.
func (s *Scanner) Find(ctx context.Context, target domain.DiscoveryTarget) (*domain.TrendReport, error) {
	if target.URL == "" {
		return nil, fmt.Errorf("no url configured for newspage target %q", target.Query)
	}

	doc, err := s.fetchDocument(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	headlines := extractHeadlines(doc, target.Query)
	if len(headlines) == 0 {
		return nil, fmt.Errorf("no headlines matched on %s", target.URL)
	}

	raw, err := json.Marshal(map[string]any{"url": target.URL, "headlines": headlines})
	if err != nil {
		return nil, fmt.Errorf("marshal headlines: %w", err)
	}

	return &domain.TrendReport{
		Summary:   strings.Join(headlines, "; "),
		Relevance: relevanceFor(len(headlines)),
		Raw:       raw,
	}, nil
}

func (s *Scanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "LinkPilot/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newspage returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractHeadlines(doc *goquery.Document, keyword string) []string {
	var headlines []string
	seen := map[string]struct{}{}
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	doc.Find("h1 a, h2 a, h3 a, article h1, article h2, article h3").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return true
		}
		if keyword != "" && !strings.Contains(strings.ToLower(text), keyword) {
			return true
		}
		if _, ok := seen[text]; ok {
			return true
		}
		seen[text] = struct{}{}
		headlines = append(headlines, text)
		return len(headlines) < maxHeadlines
	})

	return headlines
}

func relevanceFor(matched int) float64 {
	score := 0.5 + 0.1*float64(matched)
	if score > 1 {
		score = 1
	}
	return score
}
