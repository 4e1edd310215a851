package stage

import (
	"context"

	"github.com/mtzanidakis/erevna/internal/message"
)

type verifyAdapter struct {
	verifier Verifier
}

func NewVerification(v Verifier) Adapter {
	return &verifyAdapter{verifier: v}
}

func (a *verifyAdapter) Name() string { return StageVerification }

func (a *verifyAdapter) Invoke(ctx context.Context, req *message.Envelope) (*message.Envelope, error) {
	var r VerifyRequest
	if err := req.Decode(&r); err != nil {
		return nil, err
	}

	verification, err := a.verifier.Verify(ctx, r.Results)
	if err != nil {
		return nil, err
	}

	return message.FromResponse(VerifyResponse{
		Status:       "success",
		Verification: verification,
	}, map[string]string{"agent": StageVerification})
}
