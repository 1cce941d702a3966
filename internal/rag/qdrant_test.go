package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileCollection(t *testing.T) {
	t.Parallel()

	const model = "ollama/nomic-embed-text@768"
	tests := []struct {
		name         string
		size         int
		storedModel  string
		discard      bool
		wantRecreate bool
		wantErr      error
	}{
		{name: "matching collection", size: 768},
		{name: "size not reported", size: 0},
		{name: "other dimension", size: 1536, wantErr: ErrDimensionMismatch},
		{name: "other dimension on rebuild", size: 1536, discard: true, wantRecreate: true},
		{name: "points of another model", size: 768, storedModel: "ollama/mxbai-embed-large@768", wantErr: ErrModelMismatch},
		{name: "points without a model tag", size: 768, storedModel: "unknown", wantErr: ErrModelMismatch},
		{name: "points of another model on rebuild", size: 768, storedModel: "openai/x@768", discard: true, wantRecreate: true},
		{name: "matching collection on rebuild", size: 768, discard: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			recreate, err := reconcileCollection("groundqa", tc.size, tc.storedModel, 768, model, tc.discard)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), "--rebuild")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRecreate, recreate)
		})
	}
}
