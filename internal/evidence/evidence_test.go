package evidence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
)

func writeArtifact(t *testing.T, paths jobfs.Paths, name string, v any) {
	t.Helper()
	require.NoError(t, jobfs.WriteJSON(filepath.Join(paths.Stage2Dir, name), v))
}

func testPaths(t *testing.T) jobfs.Paths {
	t.Helper()
	p := jobfs.For(t.TempDir(), "job1")
	require.NoError(t, p.EnsureDirs())
	return p
}

func TestBuildIndex_NoArtifacts(t *testing.T) {
	index, err := BuildIndex(testPaths(t), model.DefaultSchema())
	require.NoError(t, err)

	require.Len(t, index, len(model.LeaseFields))
	for field, snippets := range index {
		assert.Empty(t, snippets, field)
	}
}

func TestBuildIndex_QueueWinsOverAnchors(t *testing.T) {
	paths := testPaths(t)

	writeArtifact(t, paths, jobfs.ReviewQueueName, map[string]any{
		"items": []map[string]any{
			{
				"field": "city",
				"evidence": map[string]any{
					"snippets": []map[string]any{
						{"text": "situated in the city of Pune", "page": 1, "line_no": 12},
					},
				},
			},
		},
	})
	writeArtifact(t, paths, jobfs.AnchorsName, map[string]any{
		"city": []map[string]any{
			{"snippet": "anchor snippet for city", "page": 2},
		},
		"monthly_rent_rs": []map[string]any{
			{"snippet": "monthly rent of Rs. 1,50,000", "page": 3, "line_no": 4},
		},
	})

	index, err := BuildIndex(paths, model.DefaultSchema())
	require.NoError(t, err)

	// Queue snippets preempt anchors for the same field.
	require.Len(t, index["city"], 1)
	assert.Equal(t, "situated in the city of Pune", index["city"][0].Text)

	// Fields with no queue entry fall back to anchors, tagged by field.
	require.Len(t, index["monthly_rent_rs"], 1)
	assert.Equal(t, "monthly rent of Rs. 1,50,000", index["monthly_rent_rs"][0].Text)
	assert.Equal(t, "monthly_rent_rs", index["monthly_rent_rs"][0].SourceField)
}

func TestBuildIndex_AnchorCap(t *testing.T) {
	paths := testPaths(t)

	var hits []map[string]any
	for i := 0; i < anchorHitCap+5; i++ {
		hits = append(hits, map[string]any{"snippet": "hit", "page": i})
	}
	writeArtifact(t, paths, jobfs.AnchorsName, map[string]any{"city": hits})

	index, err := BuildIndex(paths, model.DefaultSchema())
	require.NoError(t, err)
	assert.Len(t, index["city"], anchorHitCap)
}

func TestBuildIndex_ExtractedFallback(t *testing.T) {
	paths := testPaths(t)

	writeArtifact(t, paths, jobfs.ExtractedName, map[string]any{
		"evidence": map[string]any{
			"handover_date": map[string]any{"evidence": "handed over on 15 May 2024", "page": 5},
			"city":          map[string]any{"evidence": ""},
		},
	})

	index, err := BuildIndex(paths, model.DefaultSchema())
	require.NoError(t, err)

	require.Len(t, index["handover_date"], 1)
	assert.Equal(t, "extracted", index["handover_date"][0].SourceField)
	assert.Empty(t, index["city"]) // empty evidence text is skipped
}

func TestBuildIndex_Dedupes(t *testing.T) {
	paths := testPaths(t)

	snippet := map[string]any{"text": "duplicate", "page": 1}
	writeArtifact(t, paths, jobfs.ReviewQueueName, map[string]any{
		"items": []map[string]any{
			{"field": "city", "evidence": map[string]any{"snippets": []map[string]any{snippet, snippet}}},
		},
	})

	index, err := BuildIndex(paths, model.DefaultSchema())
	require.NoError(t, err)
	assert.Len(t, index["city"], 1)
}
