package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

func TestScoreReranker(t *testing.T) {
	req, err := pipeline.NewRequest(pipeline.Params{Question: "q", K: 2}, "ws")
	require.NoError(t, err)

	in := []result.Fused{
		result.NewFused(doc("low", "", ""), 0.01, nil, nil),
		result.NewFused(doc("high", "", ""), 0.03, nil, nil),
		result.NewFused(doc("tie-first", "", ""), 0.02, nil, nil),
		result.NewFused(doc("tie-second", "", ""), 0.02, nil, nil),
	}

	out, err := ScoreReranker{}.Rerank(context.Background(), in, &req)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].ID())
	assert.Equal(t, "tie-first", out[1].ID())
	assert.Equal(t, "low", in[0].ID(), "input untouched")
}

func TestScoreReranker_FewerThanK(t *testing.T) {
	req, err := pipeline.NewRequest(pipeline.Params{Question: "q", K: 10}, "ws")
	require.NoError(t, err)

	out, err := ScoreReranker{}.Rerank(context.Background(), fused("a", "b"), &req)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
