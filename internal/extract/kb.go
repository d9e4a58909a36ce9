package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/mfukata/kensho/internal/model"
	"github.com/mfukata/kensho/internal/util"
)

const kbMaxBodyBytes = 4 << 20

// KBSource pulls pages from a knowledge-base HTTP API. Listing is
// cursor-paginated; each page body is HTML from which only the visible
// text is kept.
type KBSource struct {
	baseURL    string
	token      string
	pageSize   int
	maxPassage int
	httpClient *http.Client
}

// KBConfig configures a knowledge-base source
type KBConfig struct {
	BaseURL    string
	Token      string
	PageSize   int
	Timeout    time.Duration
	HTTPProxy  string
	HTTPSProxy string
}

type kbListResponse struct {
	Results    []kbPageRef `json:"results"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor"`
}

type kbPageRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	EntityID string `json:"entity_id"`
	Category string `json:"category"`
}

type kbPageResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// NewKBSource creates a knowledge-base source
func NewKBSource(cfg KBConfig) *KBSource {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KBSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pageSize:   pageSize,
		maxPassage: 500,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, ""),
			},
		},
	}
}

// Name identifies the source
func (k *KBSource) Name() string { return "kb" }

// Units lists all pages, following pagination cursors until has_more is
// false
func (k *KBSource) Units(ctx context.Context) ([]model.SourceUnit, error) {
	var units []model.SourceUnit
	cursor := ""

	for {
		listURL := fmt.Sprintf("%s/pages?page_size=%d", k.baseURL, k.pageSize)
		if cursor != "" {
			listURL += "&start_cursor=" + cursor
		}

		var page kbListResponse
		if err := k.getJSON(ctx, listURL, &page); err != nil {
			return nil, fmt.Errorf("list kb pages: %w", err)
		}

		for _, ref := range page.Results {
			entity := ref.EntityID
			if entity == "" {
				entity = ref.Title
			}
			units = append(units, model.SourceUnit{
				ID:       "kb:" + ref.ID,
				Kind:     model.UnitKBPage,
				EntityID: entity,
				Label:    ref.Title,
			})
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return units, nil
}

// Extract fetches one page and splits its visible text into passages
func (k *KBSource) Extract(ctx context.Context, unit model.SourceUnit) ([]model.Record, error) {
	pageID := strings.TrimPrefix(unit.ID, "kb:")

	var page kbPageResponse
	if err := k.getJSON(ctx, k.baseURL+"/pages/"+pageID, &page); err != nil {
		return nil, fmt.Errorf("fetch kb page %s: %w", pageID, err)
	}

	text, err := visibleText(page.Content)
	if err != nil {
		return nil, fmt.Errorf("parse kb page %s: %w", pageID, err)
	}

	passages := splitPassages(text, k.maxPassage)
	records := make([]model.Record, 0, len(passages))
	for i, passage := range passages {
		records = append(records, model.Record{
			EntityID:   unit.EntityID,
			Category:   "kb",
			Attribute:  fmt.Sprintf("passage_%03d", i+1),
			Value:      model.TextValue(passage),
			RawText:    passage,
			SourceUnit: unit.ID,
		})
	}
	return records, nil
}

// getJSON performs an authenticated GET and decodes the JSON body
func (k *KBSource) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if k.token != "" {
		req.Header.Set("Authorization", "Bearer "+k.token)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, kbMaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// visibleText extracts the visible text of an HTML fragment, skipping
// script/style/noscript/iframe subtrees. Block elements become paragraph
// breaks so passage splitting still works on markup without blank lines.
func visibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "tr":
				buf.WriteString("\n\n")
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String(), nil
}
