// Package evidence builds the read-only per-field evidence index the review
// UI displays. It is derived entirely from stage-2 artifacts and never
// mutated by review actions.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
)

// Snippet is one ranked evidence excerpt for a field.
type Snippet struct {
	Text        string   `json:"text"`
	Page        *int     `json:"page,omitempty"`
	LineNo      *int     `json:"line_no,omitempty"`
	SourceField string   `json:"source_field,omitempty"`
	Score       *float64 `json:"score,omitempty"`
}

// anchorHitCap bounds how many anchor hits feed a field with no queue
// snippets; anchors are noisy beyond the first handful.
const anchorHitCap = 8

type reviewQueue struct {
	Items []struct {
		Field    string `json:"field"`
		Evidence struct {
			Snippets []Snippet `json:"snippets"`
		} `json:"evidence"`
	} `json:"items"`
}

type anchorHit struct {
	Snippet string `json:"snippet"`
	Page    *int   `json:"page"`
	LineNo  *int   `json:"line_no"`
}

type extracted struct {
	Evidence map[string]struct {
		Evidence string `json:"evidence"`
		Page     *int   `json:"page"`
		LineNo   *int   `json:"line_no"`
	} `json:"evidence"`
}

// BuildIndex assembles the evidence index for a job from its stage-2
// artifacts, in priority order: review-queue snippets, then anchor hits,
// then raw extraction evidence. Missing artifacts simply contribute nothing.
func BuildIndex(paths jobfs.Paths, schema *model.Schema) (map[string][]Snippet, error) {
	index := make(map[string][]Snippet, schema.Len())
	for _, field := range schema.Fields() {
		index[field] = []Snippet{}
	}

	var queue reviewQueue
	if err := readOptional(filepath.Join(paths.Stage2Dir, jobfs.ReviewQueueName), &queue); err != nil {
		return nil, err
	}
	for _, item := range queue.Items {
		if item.Field == "" {
			continue
		}
		index[item.Field] = append(index[item.Field], item.Evidence.Snippets...)
	}

	var anchors map[string][]anchorHit
	if err := readOptional(filepath.Join(paths.Stage2Dir, jobfs.AnchorsName), &anchors); err != nil {
		return nil, err
	}
	for _, field := range schema.Fields() {
		if len(index[field]) > 0 {
			continue
		}
		hits := anchors[field]
		if len(hits) > anchorHitCap {
			hits = hits[:anchorHitCap]
		}
		for _, h := range hits {
			index[field] = append(index[field], Snippet{
				Text:        h.Snippet,
				Page:        h.Page,
				LineNo:      h.LineNo,
				SourceField: field,
			})
		}
	}

	var ext extracted
	if err := readOptional(filepath.Join(paths.Stage2Dir, jobfs.ExtractedName), &ext); err != nil {
		return nil, err
	}
	for _, field := range schema.Fields() {
		if len(index[field]) > 0 {
			continue
		}
		ev, ok := ext.Evidence[field]
		if !ok || ev.Evidence == "" {
			continue
		}
		index[field] = append(index[field], Snippet{
			Text:        ev.Evidence,
			Page:        ev.Page,
			LineNo:      ev.LineNo,
			SourceField: "extracted",
		})
	}

	for field, snippets := range index {
		index[field] = dedupe(snippets)
	}
	return index, nil
}

func readOptional(path string, v any) error {
	err := jobfs.ReadJSON(path, v)
	if err != nil && eris.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func dedupe(snippets []Snippet) []Snippet {
	seen := make(map[string]struct{}, len(snippets))
	out := snippets[:0]
	for _, s := range snippets {
		key := fmt.Sprintf("%s|%v|%v|%s", s.Text, intOrNil(s.Page), intOrNil(s.LineNo), s.SourceField)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
