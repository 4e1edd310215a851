package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mtzanidakis/erevna/internal/errs"
)

// Source is one persisted unit of evidence.
type Source struct {
	ID               string         `json:"id"`
	URL              string         `json:"url"`
	Title            string         `json:"title"`
	Content          string         `json:"content"`
	Domain           string         `json:"domain"`
	Author           string         `json:"author,omitempty"`
	PublishDate      string         `json:"publish_date,omitempty"`
	CredibilityScore float64        `json:"credibility_score"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	AccessCount      int64          `json:"access_count"`
	LastAccessed     time.Time      `json:"last_accessed"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (s *Source) clone() *Source {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Tags = append([]string(nil), s.Tags...)
	if s.Metadata != nil {
		dup.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

// AddResult reports the per-item outcome of a batch add.
type AddResult struct {
	Added         int      `json:"added"`
	Duplicates    int      `json:"duplicates"`
	Errors        int      `json:"errors"`
	IDs           []string `json:"ids"`
	DuplicateIDs  []string `json:"duplicate_ids"`
	ErrorMessages []string `json:"error_messages"`
}

// NormalizeURL lowercases scheme and host, strips a leading www., the
// fragment, and a trailing slash. Two records with the same normalized url
// are duplicates by definition.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errs.Validationf("invalid url %q: %v", raw, err)
	}
	if u.Host == "" {
		return "", errs.Validationf("url %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// ExtractDomain returns the host of a url without a www. prefix.
func ExtractDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddSources inserts a batch of candidate sources, classifying each candidate
// independently against already-persisted records. An exact normalized-url or
// content-hash match is an authoritative duplicate; otherwise the candidate is
// scored against stored content and classified as a duplicate of the
// highest-scoring match at or above the configured threshold. Earlier
// candidates in the same batch are persisted before later ones are judged, so
// first-seen-in-batch wins ties between siblings.
func (s *Store) AddSources(candidates []Source) (*AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &AddResult{
		IDs:           []string{},
		DuplicateIDs:  []string{},
		ErrorMessages: []string{},
	}

	for i := range candidates {
		cand := candidates[i]

		normalized, err := NormalizeURL(cand.URL)
		if err != nil {
			res.Errors++
			res.ErrorMessages = append(res.ErrorMessages, err.Error())
			continue
		}
		cand.URL = normalized
		cand.Domain = ExtractDomain(normalized)

		existingID, err := s.findDuplicateOf(&cand)
		if err != nil {
			res.Errors++
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("check %s: %v", cand.URL, err))
			continue
		}
		if existingID != "" {
			res.Duplicates++
			res.DuplicateIDs = append(res.DuplicateIDs, existingID)
			continue
		}

		if err := s.insertSource(&cand); err != nil {
			res.Errors++
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("add %s: %v", cand.URL, err))
			continue
		}
		res.Added++
		res.IDs = append(res.IDs, cand.ID)
		s.cache.put(&cand)
	}

	return res, nil
}

// findDuplicateOf returns the id of the stored record the candidate
// duplicates, or "" when the candidate is unique. The candidate url must
// already be normalized.
func (s *Store) findDuplicateOf(cand *Source) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM sources WHERE url = ?`, cand.URL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", errs.Storage("lookup url", err)
	}

	if cand.Content != "" {
		err = s.db.QueryRow(`SELECT id FROM sources WHERE content_hash = ?`, contentHash(cand.Content)).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return "", errs.Storage("lookup content hash", err)
		}

		bestID, bestScore, err := s.bestContentMatch(cand.Content)
		if err != nil {
			return "", err
		}
		if bestID != "" && bestScore >= s.cfg.DuplicateThreshold {
			return bestID, nil
		}
	}

	return "", nil
}

func (s *Store) bestContentMatch(content string) (string, float64, error) {
	rows, err := s.db.Query(`SELECT id, content FROM sources WHERE content != ''`)
	if err != nil {
		return "", 0, errs.Storage("scan contents", err)
	}
	defer rows.Close()

	var bestID string
	var bestScore float64
	for rows.Next() {
		var id, stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return "", 0, errs.Storage("scan content row", err)
		}
		if score := Similarity(content, stored); score > bestScore {
			bestID, bestScore = id, score
		}
	}
	return bestID, bestScore, rows.Err()
}

func (s *Store) insertSource(src *Source) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	if src.CredibilityScore < 0 || src.CredibilityScore > 1 {
		return errs.Validationf("credibility_score %.2f out of range [0,1]", src.CredibilityScore)
	}
	now := time.Now().UTC()
	src.LastAccessed = now
	src.CreatedAt = now

	tags, _ := json.Marshal(src.Tags)
	meta, _ := json.Marshal(src.Metadata)

	_, err := s.db.Exec(`
		INSERT INTO sources (id, url, title, content, domain, author, publish_date,
			credibility_score, tags, metadata, content_hash, access_count, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		src.ID, src.URL, src.Title, src.Content, src.Domain, src.Author, src.PublishDate,
		src.CredibilityScore, string(tags), string(meta), contentHash(src.Content), now, now)
	if err != nil {
		return errs.Storage("insert source", err)
	}
	return nil
}

const sourceColumns = `id, url, title, content, domain, author, publish_date,
	credibility_score, tags, metadata, access_count, last_accessed, created_at`

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	src := &Source{}
	var author, publishDate, tags, meta sql.NullString
	err := scanner.Scan(&src.ID, &src.URL, &src.Title, &src.Content, &src.Domain,
		&author, &publishDate, &src.CredibilityScore, &tags, &meta,
		&src.AccessCount, &src.LastAccessed, &src.CreatedAt)
	if err != nil {
		return nil, err
	}
	src.Author = author.String
	src.PublishDate = publishDate.String
	if tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &src.Tags)
	}
	if meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &src.Metadata)
	}
	return src, nil
}

// GetSource returns a record by id, bumping its access bookkeeping. The cache
// is consulted first; the durable row is still touched so correctness holds
// whether or not the cache is warm. The access count is read back from the
// row rather than bumped in place, so concurrent gets converge on the
// database's value.
func (s *Store) GetSource(id string) (*Source, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE sources SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, now, id)
	if err != nil {
		return nil, errs.Storage("touch source", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, errs.NotFound("source", id)
	}

	if cached, ok := s.cache.get(id); ok {
		if err := s.db.QueryRow(`SELECT access_count FROM sources WHERE id = ?`, id).Scan(&cached.AccessCount); err == nil {
			cached.LastAccessed = now
			s.cache.put(cached)
			return cached, nil
		}
	}

	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("source", id)
	}
	if err != nil {
		return nil, errs.Storage("get source", err)
	}
	s.cache.put(src)
	return src, nil
}

// SearchCriteria is a conjunctive filter over stored sources.
type SearchCriteria struct {
	URL            string   `json:"url,omitempty"`
	Domain         string   `json:"domain,omitempty"`
	Title          string   `json:"title,omitempty"`
	Content        string   `json:"content,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MinCredibility float64  `json:"min_credibility,omitempty"`
	DateFrom       string   `json:"date_from,omitempty"`
	DateTo         string   `json:"date_to,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Offset         int      `json:"offset,omitempty"`
}

// SearchSources applies the criteria conjunctively with limit/offset
// pagination over a stable ordering (most recently accessed first, id as the
// tie-break). Empty criteria return the most-recently-accessed records.
func (s *Store) SearchSources(c SearchCriteria) ([]Source, error) {
	limit := c.Limit
	if limit <= 0 {
		limit = 50
	}

	q := sq.Select(sourceColumns).From("sources")
	if c.URL != "" {
		q = q.Where(sq.Like{"url": "%" + c.URL + "%"})
	}
	if c.Domain != "" {
		q = q.Where(sq.Eq{"domain": c.Domain})
	}
	if c.Title != "" {
		q = q.Where(sq.Like{"title": "%" + c.Title + "%"})
	}
	if c.Content != "" {
		q = q.Where(sq.Like{"content": "%" + c.Content + "%"})
	}
	for _, tag := range c.Tags {
		q = q.Where(sq.Like{"tags": "%" + tag + "%"})
	}
	if c.MinCredibility > 0 {
		q = q.Where(sq.GtOrEq{"credibility_score": c.MinCredibility})
	}
	if c.DateFrom != "" {
		q = q.Where(sq.GtOrEq{"publish_date": c.DateFrom})
	}
	if c.DateTo != "" {
		q = q.Where(sq.LtOrEq{"publish_date": c.DateTo})
	}
	q = q.OrderBy("last_accessed DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(c.Offset))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, errs.Storage("build search query", err)
	}

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, errs.Storage("search sources", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, errs.Storage("scan source", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

var updatableFields = map[string]bool{
	"url":               true,
	"title":             true,
	"content":           true,
	"author":            true,
	"publish_date":      true,
	"credibility_score": true,
	"tags":              true,
	"metadata":          true,
}

// UpdateSource applies a partial update to a record. Unknown fields are
// rejected rather than silently ignored. Returns the names of the fields
// actually updated.
func (s *Store) UpdateSource(id string, fields map[string]any) ([]string, error) {
	if len(fields) == 0 {
		return nil, errs.Validationf("no fields to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := sq.Update("sources")
	updated := make([]string, 0, len(fields))
	for name, value := range fields {
		if !updatableFields[name] {
			return nil, errs.Validationf("unknown field %q", name)
		}
		switch name {
		case "url":
			raw, ok := value.(string)
			if !ok {
				return nil, errs.Validationf("url must be a string")
			}
			normalized, err := NormalizeURL(raw)
			if err != nil {
				return nil, err
			}
			q = q.Set("url", normalized).Set("domain", ExtractDomain(normalized))
		case "credibility_score":
			score, ok := toFloat(value)
			if !ok || score < 0 || score > 1 {
				return nil, errs.Validationf("credibility_score must be a number in [0,1]")
			}
			q = q.Set(name, score)
		case "content":
			text, ok := value.(string)
			if !ok {
				return nil, errs.Validationf("content must be a string")
			}
			q = q.Set("content", text).Set("content_hash", contentHash(text))
		case "tags", "metadata":
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, errs.Validationf("%s not serializable: %v", name, err)
			}
			q = q.Set(name, string(encoded))
		default:
			q = q.Set(name, value)
		}
		updated = append(updated, name)
	}
	q = q.Set("last_accessed", time.Now().UTC()).Where(sq.Eq{"id": id})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, errs.Storage("build update query", err)
	}

	result, err := s.db.Exec(sqlStr, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, &errs.DuplicateError{URL: fmt.Sprint(fields["url"])}
		}
		return nil, errs.Storage("update source", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, errs.NotFound("source", id)
	}

	s.cache.remove(id)
	return updated, nil
}

// DeleteSource removes a record by id. Collections referencing the id retain
// it; dangling references are surfaced by Collection lookups, not repaired.
func (s *Store) DeleteSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return errs.Storage("delete source", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("source", id)
	}
	s.cache.remove(id)
	return nil
}

// DuplicateMatch describes one candidate flagged as a duplicate.
type DuplicateMatch struct {
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	DuplicateOf  string  `json:"duplicate_of,omitempty"`  // id of the stored match, if any
	CanonicalURL string  `json:"canonical_url,omitempty"` // url of an earlier batch sibling, if that won
	Score        float64 `json:"score"`
}

// DuplicateReport is the result of a read-only duplicate preview.
type DuplicateReport struct {
	Duplicates     []DuplicateMatch `json:"duplicates"`
	UniqueCount    int              `json:"unique_count"`
	DuplicateCount int              `json:"duplicate_count"`
}

// FindDuplicates previews the classification AddSources would apply, without
// writing anything. Candidates are checked against stored records and against
// earlier unique candidates in the same batch: first seen in the batch is
// treated as canonical. That tie-break is an implementation decision, not a
// documented contract.
func (s *Store) FindDuplicates(candidates []Source) (*DuplicateReport, error) {
	report := &DuplicateReport{Duplicates: []DuplicateMatch{}}

	type pending struct {
		url     string
		content string
	}
	var uniques []pending

	for i := range candidates {
		cand := candidates[i]
		normalized, err := NormalizeURL(cand.URL)
		if err == nil {
			cand.URL = normalized
		}

		existingID, err := s.findDuplicateOf(&cand)
		if err != nil {
			return nil, err
		}
		if existingID != "" {
			report.DuplicateCount++
			report.Duplicates = append(report.Duplicates, DuplicateMatch{
				URL:         cand.URL,
				Title:       cand.Title,
				DuplicateOf: existingID,
				Score:       1.0,
			})
			continue
		}

		// Batch tie-break: compare against earlier unique siblings.
		matched := false
		for _, p := range uniques {
			if p.url == cand.URL {
				matched = true
				report.Duplicates = append(report.Duplicates, DuplicateMatch{
					URL: cand.URL, Title: cand.Title, CanonicalURL: p.url, Score: 1.0,
				})
				break
			}
			if cand.Content != "" {
				if score := Similarity(cand.Content, p.content); score >= s.cfg.DuplicateThreshold {
					matched = true
					report.Duplicates = append(report.Duplicates, DuplicateMatch{
						URL: cand.URL, Title: cand.Title, CanonicalURL: p.url, Score: score,
					})
					break
				}
			}
		}
		if matched {
			report.DuplicateCount++
			continue
		}

		report.UniqueCount++
		uniques = append(uniques, pending{url: cand.URL, content: cand.Content})
	}

	return report, nil
}

// Statistics summarizes the store contents.
type Statistics struct {
	TotalSources       int     `json:"total_sources"`
	UniqueDomains      int     `json:"unique_domains"`
	AverageCredibility float64 `json:"average_credibility"`
	TotalCollections   int     `json:"total_collections"`
	RecentlyAccessed   int     `json:"recently_accessed"`
	CacheSize          int     `json:"cache_size"`
}

func (s *Store) Statistics() (*Statistics, error) {
	stats := &Statistics{CacheSize: s.cache.size()}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sources`).Scan(&stats.TotalSources); err != nil {
		return nil, errs.Storage("count sources", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT domain) FROM sources`).Scan(&stats.UniqueDomains); err != nil {
		return nil, errs.Storage("count domains", err)
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(credibility_score) FROM sources`).Scan(&avg); err != nil {
		return nil, errs.Storage("average credibility", err)
	}
	stats.AverageCredibility = float64(int(avg.Float64*100+0.5)) / 100
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM collections`).Scan(&stats.TotalCollections); err != nil {
		return nil, errs.Storage("count collections", err)
	}
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sources WHERE last_accessed > datetime('now', '-7 days')`,
	).Scan(&stats.RecentlyAccessed)
	if err != nil {
		return nil, errs.Storage("count recent", err)
	}

	return stats, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
