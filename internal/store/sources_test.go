package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mtzanidakis/erevna/internal/errs"
)

func sampleSource(n int) Source {
	return Source{
		URL:              fmt.Sprintf("https://example.org/articles/%d", n),
		Title:            fmt.Sprintf("Article %d", n),
		Content:          fmt.Sprintf("unique body text for article number %d with distinct vocabulary token%d", n, n),
		CredibilityScore: 0.7,
		Tags:             []string{"test"},
	}
}

func TestAddSourcesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	res, err := s.AddSources([]Source{{
		URL:              "https://Example.org/Path/",
		Title:            "Solar Growth",
		Content:          "solar capacity grew substantially last year across all regions",
		Author:           "J. Doe",
		PublishDate:      "2026-01-15",
		CredibilityScore: 0.9,
		Tags:             []string{"energy", "solar"},
		Metadata:         map[string]any{"lang": "en"},
	}})
	if err != nil {
		t.Fatalf("AddSources: %v", err)
	}
	if res.Added != 1 || res.Duplicates != 0 || res.Errors != 0 {
		t.Fatalf("result = %+v", res)
	}

	got, err := s.GetSource(res.IDs[0])
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.URL != "https://example.org/Path" {
		t.Errorf("url not normalized: %q", got.URL)
	}
	if got.Domain != "example.org" {
		t.Errorf("domain = %q", got.Domain)
	}
	if got.Title != "Solar Growth" || got.Author != "J. Doe" || got.PublishDate != "2026-01-15" {
		t.Errorf("fields lost in round trip: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "energy" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.Metadata["lang"] != "en" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got.AccessCount)
	}
}

func TestAddSourcesIdempotent(t *testing.T) {
	s := newTestStore(t)
	batch := []Source{sampleSource(1), sampleSource(2), sampleSource(3)}

	first, err := s.AddSources(batch)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if first.Added != 3 {
		t.Fatalf("first added = %d", first.Added)
	}

	second, err := s.AddSources(batch)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second.Added != 0 || second.Duplicates != 3 {
		t.Errorf("second result = %+v, want 0 added 3 duplicates", second)
	}
	for i, id := range second.DuplicateIDs {
		if id != first.IDs[i] {
			t.Errorf("duplicate %d points at %s, want %s", i, id, first.IDs[i])
		}
	}
}

func TestAddSourcesContentHashMatch(t *testing.T) {
	s := newTestStore(t)
	content := "identical body served from two different mirrors of the same article"

	first, err := s.AddSources([]Source{{URL: "https://mirror-a.org/x", Content: content}})
	if err != nil || first.Added != 1 {
		t.Fatalf("first add: %v %+v", err, first)
	}

	second, err := s.AddSources([]Source{{URL: "https://mirror-b.org/y", Content: content}})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second.Duplicates != 1 || second.DuplicateIDs[0] != first.IDs[0] {
		t.Errorf("mirror not detected as duplicate: %+v", second)
	}
}

func TestAddSourcesLowOverlapNotDuplicate(t *testing.T) {
	s := newTestStore(t)

	a := strings.Repeat("alpha beta gamma delta epsilon ", 5)
	b := strings.Repeat("zeta eta theta iota kappa ", 5)

	if _, err := s.AddSources([]Source{{URL: "https://a.org/1", Content: a}}); err != nil {
		t.Fatal(err)
	}
	res, err := s.AddSources([]Source{{URL: "https://b.org/2", Content: b}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.Duplicates != 0 {
		t.Errorf("disjoint content flagged as duplicate: %+v", res)
	}
}

func TestAddSourcesNearDuplicateContent(t *testing.T) {
	s := newTestStore(t)

	base := "wind turbine output increased across the north sea region during the final quarter of the year"
	if _, err := s.AddSources([]Source{{URL: "https://a.org/wind", Content: base}}); err != nil {
		t.Fatal(err)
	}

	// Same vocabulary, one word changed.
	near := "wind turbine output increased across the north sea region during the final quarter of this year"
	res, err := s.AddSources([]Source{{URL: "https://b.org/wind-copy", Content: near}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicates != 1 {
		t.Errorf("near-identical content not flagged: %+v", res)
	}
}

func TestAddSourcesPerItemErrors(t *testing.T) {
	s := newTestStore(t)

	res, err := s.AddSources([]Source{
		{URL: "not a url", Content: "x"},
		sampleSource(7),
	})
	if err != nil {
		t.Fatalf("AddSources: %v", err)
	}
	if res.Errors != 1 || res.Added != 1 {
		t.Errorf("bad item aborted batch: %+v", res)
	}
	if len(res.ErrorMessages) != 1 {
		t.Errorf("error messages = %v", res.ErrorMessages)
	}
}

func TestGetSourceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSource("missing")
	if !errs.IsNotFound(err) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestGetSourceBumpsAccessCount(t *testing.T) {
	s := newTestStore(t)
	res, err := s.AddSources([]Source{sampleSource(1)})
	if err != nil {
		t.Fatal(err)
	}
	id := res.IDs[0]

	for i := 1; i <= 3; i++ {
		got, err := s.GetSource(id)
		if err != nil {
			t.Fatal(err)
		}
		if got.AccessCount != int64(i) {
			t.Errorf("access %d: count = %d", i, got.AccessCount)
		}
	}
}

func TestGetSourceCachedCountTracksRow(t *testing.T) {
	s := newTestStore(t)
	res, err := s.AddSources([]Source{sampleSource(1)})
	if err != nil {
		t.Fatal(err)
	}
	id := res.IDs[0]

	// Warm the cache, then bump the row behind its back.
	if _, err := s.GetSource(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE sources SET access_count = access_count + 1 WHERE id = ?`, id); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSource(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessCount != 3 {
		t.Errorf("cached count = %d, want 3 (row value)", got.AccessCount)
	}
}

func TestSearchSources(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSources([]Source{
		{URL: "https://energy.org/solar", Title: "Solar Trends", Content: "solar panels everywhere", CredibilityScore: 0.9, Tags: []string{"solar"}, PublishDate: "2026-02-01"},
		{URL: "https://energy.org/wind", Title: "Wind Trends", Content: "wind farms offshore", CredibilityScore: 0.6, Tags: []string{"wind"}, PublishDate: "2026-03-01"},
		{URL: "https://other.net/misc", Title: "Misc", Content: "unrelated material entirely", CredibilityScore: 0.3, PublishDate: "2025-12-01"},
	})
	if err != nil {
		t.Fatal(err)
	}

	byDomain, err := s.SearchSources(SearchCriteria{Domain: "energy.org"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byDomain) != 2 {
		t.Errorf("domain filter: %d results", len(byDomain))
	}

	conj, err := s.SearchSources(SearchCriteria{Domain: "energy.org", MinCredibility: 0.8})
	if err != nil {
		t.Fatal(err)
	}
	if len(conj) != 1 || conj[0].Title != "Solar Trends" {
		t.Errorf("conjunctive filter: %+v", conj)
	}

	byTag, err := s.SearchSources(SearchCriteria{Tags: []string{"wind"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTag) != 1 || byTag[0].Title != "Wind Trends" {
		t.Errorf("tag filter: %+v", byTag)
	}

	byDate, err := s.SearchSources(SearchCriteria{DateFrom: "2026-01-01", DateTo: "2026-02-15"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byDate) != 1 || byDate[0].Title != "Solar Trends" {
		t.Errorf("date range filter: %+v", byDate)
	}
}

func TestSearchSourcesPagination(t *testing.T) {
	s := newTestStore(t)
	batch := make([]Source, 8)
	for i := range batch {
		batch[i] = sampleSource(i)
	}
	if _, err := s.AddSources(batch); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for offset := 0; offset < 8; offset += 3 {
		page, err := s.SearchSources(SearchCriteria{Limit: 3, Offset: offset})
		if err != nil {
			t.Fatal(err)
		}
		for _, src := range page {
			if seen[src.ID] {
				t.Errorf("id %s appeared on two pages", src.ID)
			}
			seen[src.ID] = true
		}
	}
	if len(seen) != 8 {
		t.Errorf("pagination covered %d of 8 records", len(seen))
	}
}

func TestUpdateSource(t *testing.T) {
	s := newTestStore(t)
	res, err := s.AddSources([]Source{sampleSource(1)})
	if err != nil {
		t.Fatal(err)
	}
	id := res.IDs[0]

	updated, err := s.UpdateSource(id, map[string]any{
		"title":             "New Title",
		"credibility_score": 0.95,
	})
	if err != nil {
		t.Fatalf("UpdateSource: %v", err)
	}
	if len(updated) != 2 {
		t.Errorf("updated fields = %v", updated)
	}

	got, err := s.GetSource(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New Title" || got.CredibilityScore != 0.95 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestUpdateSourceRejectsUnknownField(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.AddSources([]Source{sampleSource(1)})

	_, err := s.UpdateSource(res.IDs[0], map[string]any{"access_count": 99})
	if !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestUpdateSourceRejectsBadCredibility(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.AddSources([]Source{sampleSource(1)})

	_, err := s.UpdateSource(res.IDs[0], map[string]any{"credibility_score": 1.5})
	if !errs.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestDeleteSource(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.AddSources([]Source{sampleSource(1)})
	id := res.IDs[0]

	if err := s.DeleteSource(id); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if _, err := s.GetSource(id); !errs.IsNotFound(err) {
		t.Errorf("deleted source still readable: %v", err)
	}
	if err := s.DeleteSource(id); !errs.IsNotFound(err) {
		t.Errorf("second delete err = %v, want NotFoundError", err)
	}
}

func TestFindDuplicatesReadOnly(t *testing.T) {
	s := newTestStore(t)
	stored, _ := s.AddSources([]Source{sampleSource(1)})

	report, err := s.FindDuplicates([]Source{sampleSource(1), sampleSource(9)})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if report.DuplicateCount != 1 || report.UniqueCount != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Duplicates[0].DuplicateOf != stored.IDs[0] {
		t.Errorf("duplicate_of = %s", report.Duplicates[0].DuplicateOf)
	}

	stats, _ := s.Statistics()
	if stats.TotalSources != 1 {
		t.Errorf("FindDuplicates wrote to the store: total = %d", stats.TotalSources)
	}
}

func TestFindDuplicatesBatchCanonical(t *testing.T) {
	s := newTestStore(t)

	// Two identical candidates, nothing stored: first is canonical.
	report, err := s.FindDuplicates([]Source{
		{URL: "https://a.org/x", Content: "same text in both candidates"},
		{URL: "https://a.org/x", Content: "same text in both candidates"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.UniqueCount != 1 || report.DuplicateCount != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Duplicates[0].CanonicalURL != "https://a.org/x" {
		t.Errorf("canonical = %q", report.Duplicates[0].CanonicalURL)
	}
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSources([]Source{
		{URL: "https://a.org/1", Content: "first distinct body", CredibilityScore: 0.8},
		{URL: "https://b.org/2", Content: "second unrelated body", CredibilityScore: 0.6},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCollection("c", "", nil, nil); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalSources != 2 || stats.UniqueDomains != 2 || stats.TotalCollections != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AverageCredibility != 0.7 {
		t.Errorf("avg credibility = %v, want 0.7", stats.AverageCredibility)
	}
	if stats.RecentlyAccessed != 2 {
		t.Errorf("recently accessed = %d", stats.RecentlyAccessed)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://WWW.Example.org/Path/", "https://example.org/Path"},
		{"HTTPS://example.org/a#frag", "https://example.org/a"},
		{"https://example.org", "https://example.org"},
	}
	for _, c := range cases {
		got, err := NormalizeURL(c.in)
		if err != nil {
			t.Errorf("NormalizeURL(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := NormalizeURL("no scheme or host"); !errs.IsValidation(err) {
		t.Errorf("invalid url err = %v", err)
	}
}

func TestCacheEviction(t *testing.T) {
	c := newSourceCache(2)
	c.put(&Source{ID: "a"})
	c.put(&Source{ID: "b"})
	c.put(&Source{ID: "c"})

	if _, ok := c.get("a"); ok {
		t.Error("oldest entry not evicted")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("newest entry missing")
	}
	if c.size() != 2 {
		t.Errorf("size = %d", c.size())
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := newSourceCache(5)
	c.put(&Source{ID: "a", Title: "original", Tags: []string{"x"}})

	got, _ := c.get("a")
	got.Title = "mutated"
	got.Tags[0] = "y"

	again, _ := c.get("a")
	if again.Title != "original" || again.Tags[0] != "x" {
		t.Errorf("cache entry aliased caller data: %+v", again)
	}
}
