package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff"
	"github.com/gocolly/colly"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/masa-finance/resilient-engine/api/types"
	"github.com/masa-finance/resilient-engine/internal/config"
	"github.com/masa-finance/resilient-engine/internal/engine"
)

const FetchToolType = "web-fetch"

// FetchTool retrieves the readable content of a web page. The primary
// handler does a plain HTTP GET with bounded retries and extracts text with
// goquery; the fallback crawls the page with colly, which copes better with
// pages that need link-following to reach the content.
type FetchTool struct {
	configuration config.FetchConfig
	httpClient    *http.Client
}

type FetchArgs struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Page is the extracted content of a fetched page.
type Page struct {
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
	Links      []string `json:"links,omitempty"`
}

func NewFetchTool(ec config.EngineConfiguration) *FetchTool {
	return &FetchTool{
		configuration: ec.GetFetchConfig(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Handlers returns the fallback chain in preference order.
func (ft *FetchTool) Handlers() []engine.Handler {
	return []engine.Handler{
		{Name: "http", Run: ft.fetchHTTP},
		{Name: "crawler", Run: ft.fetchCrawler},
	}
}

func (ft *FetchTool) parseArgs(args types.Arguments) (*FetchArgs, error) {
	fa := &FetchArgs{}
	if err := args.Unmarshal(fa); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if fa.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if blacklisted(fa.URL, ft.configuration.Blacklist) {
		return nil, fmt.Errorf("URL blacklisted: %s", fa.URL)
	}
	return fa, nil
}

func blacklisted(url string, blacklist []string) bool {
	return slices.ContainsFunc(blacklist, func(term string) bool {
		return strings.Contains(url, term)
	})
}

// fetchHTTP is the primary strategy: a single GET with exponential backoff
// on transient failures, then goquery text extraction.
func (ft *FetchTool) fetchHTTP(args types.Arguments) (string, error) {
	fa, err := ft.parseArgs(args)
	if err != nil {
		return "", err
	}

	var resp *http.Response
	operation := func() error {
		var err error
		resp, err = ft.httpClient.Get(fa.URL)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}

	strategy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(operation, strategy); err != nil {
		return "", fmt.Errorf("error fetching %s: %w", fa.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, fa.URL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error parsing %s: %w", fa.URL, err)
	}

	page := Page{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			page.Paragraphs = append(page.Paragraphs, text)
		}
	})

	if page.Title == "" && len(page.Paragraphs) == 0 {
		return "", fmt.Errorf("no readable content extracted from %s", fa.URL)
	}

	return marshalResult(page)
}

// fetchCrawler is the fallback strategy: a colly crawl of the page and, when
// a depth is requested, the pages it links to.
func (ft *FetchTool) fetchCrawler(args types.Arguments) (string, error) {
	fa, err := ft.parseArgs(args)
	if err != nil {
		return "", err
	}

	depth := fa.Depth
	if depth <= 0 {
		depth = 1
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxDepth(depth),
	)

	limitRule := colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 4,
		Delay:       500 * time.Millisecond,
	}
	if err := c.Limit(&limitRule); err != nil {
		logrus.Errorf("Unable to set crawler limit, using default: %v", err)
	}
	c.SetRequestTimeout(60 * time.Second)

	backoffStrategy := backoff.NewExponentialBackOff()
	var crawlMu sync.Mutex
	var crawlErr error

	c.OnError(func(r *colly.Response, err error) {
		if r.StatusCode == http.StatusTooManyRequests {
			nextDelay := backoffStrategy.NextBackOff()
			if retryAfter, convErr := strconv.Atoi(r.Headers.Get("Retry-After")); convErr == nil && retryAfter > 0 {
				nextDelay = time.Duration(retryAfter) * time.Second
			}
			logrus.Warnf("Rate limited for URL %s, retrying after %v", r.Request.URL, nextDelay)
			time.Sleep(nextDelay)
			_ = r.Request.Retry()
			return
		}
		logrus.Errorf("Request to %s failed: %v", r.Request.URL, err)
		crawlMu.Lock()
		crawlErr = err
		crawlMu.Unlock()
	})

	// The async collector runs callbacks concurrently once the crawl fans
	// out over links, so all page mutations go through the mutex.
	var pageMu sync.Mutex
	page := Page{}
	c.OnHTML("title", func(e *colly.HTMLElement) {
		pageMu.Lock()
		defer pageMu.Unlock()
		if page.Title == "" {
			page.Title = strings.TrimSpace(e.Text)
		}
	})
	c.OnHTML("p", func(e *colly.HTMLElement) {
		pageMu.Lock()
		defer pageMu.Unlock()
		if text := strings.TrimSpace(e.Text); text != "" && !slices.Contains(page.Paragraphs, text) {
			page.Paragraphs = append(page.Paragraphs, text)
		}
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			pageMu.Lock()
			page.Links = append(page.Links, link)
			pageMu.Unlock()
			if depth > 1 {
				_ = e.Request.Visit(link)
			}
		}
	})

	if err := c.Visit(fa.URL); err != nil {
		return "", fmt.Errorf("error visiting %s: %w", fa.URL, err)
	}
	c.Wait()

	if len(page.Paragraphs) == 0 && page.Title == "" {
		if crawlErr != nil {
			return "", fmt.Errorf("crawl of %s failed: %w", fa.URL, crawlErr)
		}
		return "", fmt.Errorf("no readable content extracted from %s", fa.URL)
	}

	return marshalResult(page)
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("error marshalling result: %w", err)
	}
	return string(data), nil
}
