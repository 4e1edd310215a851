package stage

import (
	"context"

	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/message"
)

type renderAdapter struct {
	renderer Renderer
}

func NewRendering(r Renderer) Adapter {
	return &renderAdapter{renderer: r}
}

func (a *renderAdapter) Name() string { return Rendering }

func (a *renderAdapter) Invoke(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	var r RenderRequest
	if err := req.Decode(&r); err != nil {
		return nil, err
	}
	if r.Synthesis == nil {
		return nil, errs.Validationf("render request missing synthesis")
	}

	report, err := a.renderer.Render(ctx, &r)
	if err != nil {
		return nil, err
	}

	return message.FromResponse(RenderResponse{
		Status: "success",
		Report: report,
	}, map[string]string{"agent": Rendering})
}
