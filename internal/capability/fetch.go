package capability

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/pkg/edgar"
)

// edgarFetcher retrieves SEC filings through the EDGAR client.
type edgarFetcher struct {
	client edgar.Client
}

// NewEdgarFetcher returns a DocumentFetcher backed by SEC EDGAR.
func NewEdgarFetcher(client edgar.Client) DocumentFetcher {
	return &edgarFetcher{client: client}
}

// FetchDocument resolves the ticker to a CIK, pulls the latest filing of
// the requested form type, and returns its text. When section names an
// item (e.g. "1A" or "item 7"), only that item's body is returned.
func (f *edgarFetcher) FetchDocument(ctx context.Context, ticker, docType, section string) (string, error) {
	form := strings.ToUpper(strings.TrimSpace(docType))
	if form == "" {
		form = "10-K"
	}

	cik, err := f.client.ResolveCIK(ctx, ticker)
	if err != nil {
		return "", eris.Wrapf(err, "capability: resolve CIK for %s", ticker)
	}

	filing, err := f.client.LatestFiling(ctx, cik, form)
	if err != nil {
		return "", eris.Wrapf(err, "capability: latest %s for %s", form, ticker)
	}

	text, err := f.client.FetchDocument(ctx, filing)
	if err != nil {
		return "", eris.Wrapf(err, "capability: fetch %s %s", ticker, form)
	}

	zap.L().Debug("capability: document fetched",
		zap.String("ticker", ticker),
		zap.String("form", form),
		zap.String("accession", filing.AccessionNumber),
		zap.Int("chars", len(text)),
	)

	if section == "" {
		return text, nil
	}

	item := normalizeItem(section)
	sections := edgar.SplitSections(text)
	if body := edgar.SectionText(sections, item); body != "" {
		return body, nil
	}

	return "", eris.Errorf("capability: section %q not found in %s %s", section, ticker, form)
}

// normalizeItem reduces "Item 1A", "item_7a", "1a" to "1A".
func normalizeItem(section string) string {
	s := strings.ToUpper(strings.TrimSpace(section))
	s = strings.TrimPrefix(s, "ITEM")
	s = strings.Trim(s, " _.")
	return s
}
