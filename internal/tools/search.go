package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/resilient-engine/api/types"
	"github.com/masa-finance/resilient-engine/internal/config"
	"github.com/masa-finance/resilient-engine/internal/engine"
)

const SearchToolType = "web-search"

const searchScrapeEndpoint = "https://html.duckduckgo.com/html/"

// SearchTool answers a search query. The primary handler calls a configured
// JSON search API with a cached session token; the fallback scrapes a public
// HTML results page with colly.
type SearchTool struct {
	configuration config.SearchConfig
	httpClient    *http.Client
	tokens        *TokenCache
}

type SearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// SearchResult is one entry of a search response.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// searchAPIResponse is the expected shape of the search API's /search reply.
// Decoding into it fails fast when the upstream changes shape instead of
// silently producing empty fields.
type searchAPIResponse struct {
	Results []SearchResult `json:"results"`
}

// tokenResponse is the expected shape of the search API's /auth/token reply.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func NewSearchTool(ec config.EngineConfiguration) *SearchTool {
	return &SearchTool{
		configuration: ec.GetSearchConfig(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokens:        &TokenCache{},
	}
}

// Handlers returns the fallback chain in preference order.
func (st *SearchTool) Handlers() []engine.Handler {
	return []engine.Handler{
		{Name: "api", Run: st.searchAPI},
		{Name: "scraper", Run: st.searchScrape},
	}
}

func parseSearchArgs(args types.Arguments) (*SearchArgs, error) {
	sa := &SearchArgs{}
	if err := args.Unmarshal(sa); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if sa.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if sa.MaxResults <= 0 {
		sa.MaxResults = 10
	}
	return sa, nil
}

// searchAPI is the primary strategy. Authentication follows the upstream's
// token flow: the static API key is exchanged for a short-lived session
// token, which is cached until shortly before expiry.
func (st *SearchTool) searchAPI(args types.Arguments) (string, error) {
	sa, err := parseSearchArgs(args)
	if err != nil {
		return "", err
	}

	if st.configuration.APIURL == "" {
		return "", fmt.Errorf("no search API endpoint configured")
	}

	token, err := st.tokens.Get(st.fetchToken)
	if err != nil {
		return "", fmt.Errorf("error obtaining search API token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/search?q=%s&limit=%d",
		strings.TrimSuffix(st.configuration.APIURL, "/"),
		url.QueryEscape(sa.Query), sa.MaxResults)

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("error building search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := st.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked upstream before its advertised expiry.
		st.tokens.Invalidate()
		return "", fmt.Errorf("search API rejected session token")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading search response: %w", err)
	}

	apiResp := searchAPIResponse{}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unexpected search API response shape: %w", err)
	}
	if apiResp.Results == nil {
		return "", fmt.Errorf("unexpected search API response shape: missing results field")
	}

	if len(apiResp.Results) > sa.MaxResults {
		apiResp.Results = apiResp.Results[:sa.MaxResults]
	}
	return marshalResult(apiResp.Results)
}

func (st *SearchTool) fetchToken() (string, time.Duration, error) {
	endpoint := strings.TrimSuffix(st.configuration.APIURL, "/") + "/v1/auth/token"

	body, err := json.Marshal(map[string]string{"api_key": st.configuration.APIKey})
	if err != nil {
		return "", 0, fmt.Errorf("error marshalling token request: %w", err)
	}

	resp, err := st.httpClient.Post(endpoint, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return "", 0, fmt.Errorf("error requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	tr := tokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("unexpected token response shape: %w", err)
	}
	if tr.Token == "" || tr.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("unexpected token response shape: empty token or expiry")
	}

	logrus.Debug("Obtained fresh search API token")
	return tr.Token, time.Duration(tr.ExpiresIn) * time.Second, nil
}

// searchScrape is the fallback strategy: scrape a public HTML results page.
func (st *SearchTool) searchScrape(args types.Arguments) (string, error) {
	sa, err := parseSearchArgs(args)
	if err != nil {
		return "", err
	}

	c := colly.NewCollector(colly.IgnoreRobotsTxt())
	c.SetRequestTimeout(30 * time.Second)

	var results []SearchResult
	var scrapeErr error

	c.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(results) >= sa.MaxResults {
			return
		}
		result := SearchResult{
			Title:   strings.TrimSpace(e.ChildText("a.result__a")),
			URL:     e.ChildAttr("a.result__a", "href"),
			Snippet: strings.TrimSpace(e.ChildText("a.result__snippet")),
		}
		if result.Title != "" && result.URL != "" {
			results = append(results, result)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		logrus.Errorf("Search scrape request failed with status %d: %v", r.StatusCode, err)
		scrapeErr = err
	})

	if err := c.Visit(searchScrapeEndpoint + "?q=" + url.QueryEscape(sa.Query)); err != nil {
		return "", fmt.Errorf("error scraping search results: %w", err)
	}
	c.Wait()

	if scrapeErr != nil {
		return "", fmt.Errorf("error scraping search results: %w", scrapeErr)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no search results scraped for query %q", sa.Query)
	}

	return marshalResult(results)
}
