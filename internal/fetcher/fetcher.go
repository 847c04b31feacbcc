// Package fetcher retrieves RSS job feeds and normalizes their entries
// into candidate records for the import engine.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/quangbt/jobpulse/internal/importer/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// FetchError aborts one fetch as a whole. It carries the HTTP status when
// the feed endpoint answered with one, or the underlying network/parse error.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int // 0 unless the failure was an HTTP status
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch jobs from %s: unexpected status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch jobs from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config holds fetcher configuration
type Config struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// Fetcher retrieves and parses one feed document per call
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFetcher creates a new Fetcher with a bounded-timeout HTTP client
func NewFetcher(cfg *Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		logger: cfg.Logger,
	}
}

// Fetch retrieves the feed at url and normalizes its entries. A failure to
// retrieve or parse the whole document returns a *FetchError and no records;
// a single bad entry is skipped and the rest of the feed survives.
func (f *Fetcher) Fetch(ctx context.Context, url, sourceKey string) ([]domain.CandidateRecord, error) {
	f.logger.Info("Fetching jobs",
		slog.String("source", sourceKey),
		slog.String("url", url),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: sourceKey, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: sourceKey, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: sourceKey, URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: sourceKey, URL: url, Err: err}
	}

	feed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, &FetchError{Source: sourceKey, URL: url, Err: fmt.Errorf("parse feed: %w", err)}
	}

	captured := time.Now()
	records := make([]domain.CandidateRecord, 0, len(feed.Items))
	for i, item := range feed.Items {
		if item == nil {
			continue
		}
		records = append(records, buildRecord(item, sourceKey, i, captured))
	}

	f.logger.Info("Fetched jobs",
		slog.String("source", sourceKey),
		slog.Int("count", len(records)),
	)

	return records, nil
}

// buildRecord normalizes one feed entry into a CandidateRecord
func buildRecord(item *gofeed.Item, sourceKey string, index int, captured time.Time) domain.CandidateRecord {
	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	postedDate := captured
	if item.PublishedParsed != nil {
		postedDate = *item.PublishedParsed
	}

	company, location := splitTitle(title)

	return domain.CandidateRecord{
		Title:       cleanText(title),
		Description: cleanText(item.Description),
		Company:     company,
		Location:    location,
		JobType:     "Full-time",
		Category:    categoryFromSource(sourceKey),
		Salary:      extractSalary(item.Description),
		Link:        item.Link,
		PostedDate:  postedDate,
		// The feed carries no stable id, so the identifier is synthesized
		// per fetch; dedup hinges on the link alone.
		SourceID: fmt.Sprintf("%s-%d-%d", sourceKey, index, captured.UnixMilli()),
	}
}

// splitTitle derives company and location from an entry title of the shape
// "Company - Role - Location". Without a separator the defaults apply.
func splitTitle(title string) (company, location string) {
	company = "Unknown"
	location = "Remote"

	parts := strings.Split(title, " - ")
	if len(parts) > 1 {
		company = strings.TrimSpace(parts[0])
		location = strings.TrimSpace(parts[len(parts)-1])
	}

	return company, location
}

// categoryFromSource pulls the category token out of a source key like
// "jobicy_design"
func categoryFromSource(sourceKey string) string {
	parts := strings.Split(sourceKey, "_")
	if len(parts) > 1 && parts[1] != "" {
		return parts[1]
	}
	return "General"
}
