// Package stage defines the adapter boundary between the coordinator and the
// collaborators that do the actual work of each pipeline stage. An adapter
// owns exactly one stage: it decodes the request envelope into its typed
// contract, delegates, and encodes the typed result back into an envelope.
package stage

import (
	"context"

	"github.com/mtzanidakis/erevna/internal/message"
)

// Stage names in execution order.
const (
	Research          = "research"
	StageVerification = "verification"
	StageSynthesis    = "synthesis"
	Rendering         = "rendering"
)

// Order is the fixed stage sequence the coordinator walks.
var Order = []string{Research, StageVerification, StageSynthesis, Rendering}

type Adapter interface {
	Name() string
	Invoke(ctx context.Context, req *message.Envelope) (*message.Envelope, error)
}

// Collaborator interfaces implemented by internal/collab. Adapters accept the
// interface so tests can substitute fakes.

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

type Verifier interface {
	Verify(ctx context.Context, results []SearchResult) (*Verification, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, topic string, results []SearchResult, v *Verification) (*Synthesis, error)
}

type Renderer interface {
	Render(ctx context.Context, req *RenderRequest) (*Report, error)
}
