package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/erevna/internal/errs"
)

// Collection is a named set of source ids. Membership is stored as a JSON
// array; a member id may outlive the source it points to.
type Collection struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SourceIDs   []string       `json:"source_ids"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (s *Store) CreateCollection(name, description string, sourceIDs []string, metadata map[string]any) (*Collection, error) {
	if name == "" {
		return nil, errs.Validationf("collection name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Only keep ids that resolve to stored sources.
	valid := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM sources WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errs.Storage("check source", err)
		}
		valid = append(valid, id)
	}

	col := &Collection{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		SourceIDs:   valid,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	ids, _ := json.Marshal(col.SourceIDs)
	meta, _ := json.Marshal(col.Metadata)
	_, err := s.db.Exec(`
		INSERT INTO collections (id, name, description, sources, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		col.ID, col.Name, col.Description, string(ids), string(meta), col.CreatedAt, col.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("insert collection", err)
	}

	return col, nil
}

func (s *Store) GetCollection(id string) (*Collection, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, sources, metadata, created_at, updated_at
		FROM collections WHERE id = ?`, id)
	col, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("collection", id)
	}
	if err != nil {
		return nil, errs.Storage("get collection", err)
	}
	return col, nil
}

func (s *Store) ListCollections() ([]Collection, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, sources, metadata, created_at, updated_at
		FROM collections ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Storage("list collections", err)
	}
	defer rows.Close()

	var cols []Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, errs.Storage("scan collection", err)
		}
		cols = append(cols, *col)
	}
	return cols, rows.Err()
}

// AddToCollection appends source ids to a collection, skipping ids already
// present and ids that do not resolve to a stored source.
func (s *Store) AddToCollection(collectionID string, sourceIDs []string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(col.SourceIDs))
	for _, id := range col.SourceIDs {
		present[id] = true
	}

	for _, id := range sourceIDs {
		if present[id] {
			continue
		}
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM sources WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errs.Storage("check source", err)
		}
		col.SourceIDs = append(col.SourceIDs, id)
		present[id] = true
	}

	col.UpdatedAt = time.Now().UTC()
	ids, _ := json.Marshal(col.SourceIDs)
	_, err = s.db.Exec(`UPDATE collections SET sources = ?, updated_at = ? WHERE id = ?`,
		string(ids), col.UpdatedAt, col.ID)
	if err != nil {
		return nil, errs.Storage("update collection", err)
	}

	return col, nil
}

func (s *Store) DeleteCollection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return errs.Storage("delete collection", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("collection", id)
	}
	return nil
}

// CollectionSources resolves a collection's member ids to records, dropping
// members whose source has since been deleted.
func (s *Store) CollectionSources(id string) ([]Source, error) {
	col, err := s.GetCollection(id)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(col.SourceIDs))
	for _, sid := range col.SourceIDs {
		row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, sid)
		src, err := scanSource(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errs.Storage("get collection source", err)
		}
		sources = append(sources, *src)
	}
	return sources, nil
}

func scanCollection(scanner interface{ Scan(dest ...any) error }) (*Collection, error) {
	col := &Collection{}
	var description, ids, meta sql.NullString
	err := scanner.Scan(&col.ID, &col.Name, &description, &ids, &meta, &col.CreatedAt, &col.UpdatedAt)
	if err != nil {
		return nil, err
	}
	col.Description = description.String
	col.SourceIDs = []string{}
	if ids.String != "" {
		_ = json.Unmarshal([]byte(ids.String), &col.SourceIDs)
	}
	if meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &col.Metadata)
	}
	return col, nil
}
