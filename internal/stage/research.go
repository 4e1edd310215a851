package stage

import (
	"context"

	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/message"
)

type researchAdapter struct {
	searcher Searcher
}

func NewResearch(s Searcher) Adapter {
	return &researchAdapter{searcher: s}
}

func (a *researchAdapter) Name() string { return Research }

func (a *researchAdapter) Invoke(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	var r ResearchRequest
	if err := req.Decode(&r); err != nil {
		return nil, err
	}
	if r.Topic == "" {
		return nil, errs.Validationf("research request missing topic")
	}

	query := r.Query
	if query == "" {
		query = r.Topic
	}
	maxResults := r.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	results, err := a.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []SearchResult{}
	}

	return message.FromResponse(ResearchResponse{
		Status:      "success",
		Results:     results,
		ResultCount: len(results),
	}, map[string]string{"agent": Research})
}
