package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Remote Jobs</title>
    <link>https://example.com</link>
    <description>Latest remote jobs</description>
    <item>
      <title>Acme Corp - Senior Gopher - Berlin</title>
      <description>&lt;p&gt;Build &amp;amp; ship backend services.&lt;/p&gt; Salary $90,000 to $120,000 per year.</description>
      <link>https://example.com/jobs/1</link>
      <pubDate>Mon, 10 Aug 2026 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Standalone Title Without Separator</title>
      <description>No salary mentioned here.</description>
      <link>https://example.com/jobs/2</link>
    </item>
  </channel>
</rss>`

func newTestFetcher() *Fetcher {
	return NewFetcher(&Config{
		Logger:  slog.New(slog.DiscardHandler),
		Timeout: 5 * time.Second,
	})
}

func TestFetchParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleFeed)
	}))
	defer srv.Close()

	records, err := newTestFetcher().Fetch(context.Background(), srv.URL, "jobicy_design")
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Acme Corp - Senior Gopher - Berlin", first.Title)
	assert.Equal(t, "Acme Corp", first.Company)
	assert.Equal(t, "Berlin", first.Location)
	assert.Equal(t, "Build & ship backend services. Salary $90,000 to $120,000 per year.", first.Description)
	assert.Equal(t, "$90,000 - $120,000", first.Salary)
	assert.Equal(t, "design", first.Category)
	assert.Equal(t, "Full-time", first.JobType)
	assert.Equal(t, "https://example.com/jobs/1", first.Link)
	assert.Equal(t, time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC), first.PostedDate.UTC())

	second := records[1]
	assert.Equal(t, "Unknown", second.Company)
	assert.Equal(t, "Remote", second.Location)
	assert.Empty(t, second.Salary)
	// Entries without a pubDate fall back to the capture time
	assert.WithinDuration(t, time.Now(), second.PostedDate, time.Minute)
}

func TestFetchSourceIDsAreUniquePerEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleFeed)
	}))
	defer srv.Close()

	records, err := newTestFetcher().Fetch(context.Background(), srv.URL, "jobicy_all")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.NotEqual(t, records[0].SourceID, records[1].SourceID)
	assert.Contains(t, records[0].SourceID, "jobicy_all-0-")
	assert.Contains(t, records[1].SourceID, "jobicy_all-1-")
}

func TestFetchHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	records, err := newTestFetcher().Fetch(context.Background(), srv.URL, "jobicy_all")
	require.Error(t, err)
	assert.Nil(t, records)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, "jobicy_all", fetchErr.Source)
	assert.Contains(t, err.Error(), "500")
}

func TestFetchParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed document")
	}))
	defer srv.Close()

	records, err := newTestFetcher().Fetch(context.Background(), srv.URL, "jobicy_all")
	require.Error(t, err)
	assert.Nil(t, records)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, "jobicy_all")

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		title        string
		wantCompany  string
		wantLocation string
	}{
		{"Acme - Engineer - Paris", "Acme", "Paris"},
		{"Acme - Remote", "Acme", "Remote"},
		{"Just A Title", "Unknown", "Remote"},
		{"", "Unknown", "Remote"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			company, location := splitTitle(tt.title)
			assert.Equal(t, tt.wantCompany, company)
			assert.Equal(t, tt.wantLocation, location)
		})
	}
}

func TestCategoryFromSource(t *testing.T) {
	tests := []struct {
		sourceKey string
		want      string
	}{
		{"jobicy_design", "design"},
		{"jobicy_data", "data"},
		{"higheredjobs", "General"},
		{"", "General"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceKey, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFromSource(tt.sourceKey))
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"decodes entities", "Fish &amp; Chips&nbsp;&lt;fresh&gt;", "Fish & Chips <fresh>"},
		{"decodes quotes", "&quot;quoted&quot; and it&#39;s fine", `"quoted" and it's fine`},
		{"trims whitespace", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.input))
		})
	}
}

func TestExtractSalary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single dollar amount", "pays $85,000 per year", "$85,000"},
		{"range", "between $90,000 and $120,000", "$90,000 - $120,000"},
		{"pounds", "£45,000 package", "£45,000"},
		{"euros", "up to €70,000", "€70,000"},
		{"none", "competitive salary", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSalary(tt.input))
		})
	}
}
