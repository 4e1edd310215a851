package stage

import (
	"context"

	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/message"
)

type synthesisAdapter struct {
	synthesizer Synthesizer
}

func NewSynthesis(s Synthesizer) Adapter {
	return &synthesisAdapter{synthesizer: s}
}

func (a *synthesisAdapter) Name() string { return StageSynthesis }

func (a *synthesisAdapter) Invoke(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	var r SynthesisRequest
	if err := req.Decode(&r); err != nil {
		return nil, err
	}
	if r.Topic == "" {
		return nil, errs.Validationf("synthesis request missing topic")
	}

	synthesis, err := a.synthesizer.Synthesize(ctx, r.Topic, r.Results, r.Verification)
	if err != nil {
		return nil, err
	}

	return message.FromResponse(SynthesisResponse{
		Status:    "success",
		Synthesis: synthesis,
	}, map[string]string{"agent": StageSynthesis})
}
