// Package edgar provides a client for the SEC EDGAR full-text filing system.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the interface for fetching SEC filings.
type Client interface {
	// ResolveCIK maps a ticker symbol to its zero-padded 10-digit CIK.
	ResolveCIK(ctx context.Context, ticker string) (string, error)
	// LatestFiling returns the most recent filing of the given form type
	// (e.g. "10-K", "10-Q") for a CIK.
	LatestFiling(ctx context.Context, cik, form string) (*Filing, error)
	// FetchDocument downloads the primary document of a filing and returns
	// its plain text.
	FetchDocument(ctx context.Context, filing *Filing) (string, error)
}

// Filing identifies a single EDGAR filing.
type Filing struct {
	CIK             string
	AccessionNumber string
	Form            string
	FilingDate      string
	PrimaryDocument string
}

// submissionsResponse mirrors the data.sec.gov submissions JSON.
type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

type tickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

type httpClient struct {
	userAgent   string
	dataBaseURL string
	wwwBaseURL  string
	http        *http.Client
	limiter     *rate.Limiter
}

// Option configures the EDGAR client.
type Option func(*httpClient)

// WithDataBaseURL overrides the data.sec.gov base URL. Used in tests.
func WithDataBaseURL(u string) Option {
	return func(c *httpClient) {
		c.dataBaseURL = strings.TrimRight(u, "/")
	}
}

// WithArchiveBaseURL overrides the www.sec.gov base URL. Used in tests.
func WithArchiveBaseURL(u string) Option {
	return func(c *httpClient) {
		c.wwwBaseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates an EDGAR client. The SEC requires a descriptive
// User-Agent with contact information on every request.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		userAgent:   userAgent,
		dataBaseURL: "https://data.sec.gov",
		wwwBaseURL:  "https://www.sec.gov",
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		// SEC fair-access policy caps automated traffic at 10 req/s.
		limiter: rate.NewLimiter(10, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "edgar: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("edgar: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return body, nil
}

func (c *httpClient) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	body, err := c.get(ctx, c.wwwBaseURL+"/files/company_tickers.json")
	if err != nil {
		return "", err
	}

	var entries map[string]tickerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", eris.Wrap(err, "edgar: unmarshal ticker map")
	}

	want := strings.ToUpper(strings.TrimSpace(ticker))
	for _, e := range entries {
		if strings.ToUpper(e.Ticker) == want {
			return fmt.Sprintf("%010d", e.CIK), nil
		}
	}

	return "", eris.Errorf("edgar: ticker %q not found", ticker)
}

func (c *httpClient) LatestFiling(ctx context.Context, cik, form string) (*Filing, error) {
	body, err := c.get(ctx, c.dataBaseURL+"/submissions/CIK"+cik+".json")
	if err != nil {
		return nil, err
	}

	var subs submissionsResponse
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, eris.Wrap(err, "edgar: unmarshal submissions")
	}

	recent := subs.Filings.Recent
	for i, f := range recent.Form {
		if !strings.EqualFold(f, form) {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			break
		}
		filing := &Filing{
			CIK:             cik,
			AccessionNumber: recent.AccessionNumber[i],
			Form:            f,
			PrimaryDocument: recent.PrimaryDocument[i],
		}
		if i < len(recent.FilingDate) {
			filing.FilingDate = recent.FilingDate[i]
		}
		zap.L().Debug("edgar: resolved latest filing",
			zap.String("cik", cik),
			zap.String("form", form),
			zap.String("accession", filing.AccessionNumber),
			zap.String("filed", filing.FilingDate),
		)
		return filing, nil
	}

	return nil, eris.Errorf("edgar: no %s filing found for CIK %s", form, cik)
}

func (c *httpClient) FetchDocument(ctx context.Context, filing *Filing) (string, error) {
	accession := strings.ReplaceAll(filing.AccessionNumber, "-", "")
	cik := strings.TrimLeft(filing.CIK, "0")
	rawURL := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.wwwBaseURL, cik, accession, filing.PrimaryDocument)

	body, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text := StripHTML(string(body))
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("edgar: filing %s produced no text", filing.AccessionNumber)
	}

	return text, nil
}
