package ai

import (
	"context"

	"github.com/ignatzorin/consult-backend/internal/ai"
	"github.com/ignatzorin/consult-backend/internal/usecase/qc"
)

// ReviewerAdapter подключает AI клиента как внешнего ревьюера отчётов.
type ReviewerAdapter struct {
	client *ai.Client
}

func NewReviewerAdapter(client *ai.Client) *ReviewerAdapter {
	if client == nil {
		return nil
	}
	return &ReviewerAdapter{client: client}
}

func (a *ReviewerAdapter) Review(ctx context.Context, text string, actions []string) (qc.ReviewResult, error) {
	v, err := a.client.ReviewFeedback(ctx, text, actions)
	if err != nil {
		return qc.ReviewResult{}, err
	}
	return qc.ReviewResult{Passed: v.Passed, Reasons: v.Reasons}, nil
}
