package checkers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/pkg/wait"
)

// SearchChecker reads indices of Elasticsearch or Opensearch.
type SearchChecker struct {
	engine infra.SearchEngine
}

func NewSearchChecker(engine infra.SearchEngine) *SearchChecker {
	return &SearchChecker{engine: engine}
}

func (s *SearchChecker) IndexExists(ctx context.Context, index string) (bool, error) {
	out, err := s.engine.Query(ctx, "GET", "/"+index, "")
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "index_not_found_exception") && !strings.Contains(out, `"status":404`), nil
}

// DocumentHasField reports whether document id of index has field set to value.
func (s *SearchChecker) DocumentHasField(ctx context.Context, index, id, field, value string) (bool, error) {
	out, err := s.engine.Query(ctx, "GET", fmt.Sprintf("/%s/_doc/%s", index, id), "")
	if err != nil {
		return false, err
	}
	var doc struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return false, fmt.Errorf("failed to parse document %s/%s: %w", index, id, err)
	}
	if !doc.Found {
		return false, nil
	}
	v, ok := doc.Source[field]
	return ok && fmt.Sprint(v) == value, nil
}

// DocumentCount counts the documents of index.
func (s *SearchChecker) DocumentCount(ctx context.Context, index string) (int, error) {
	out, err := s.engine.Query(ctx, "GET", fmt.Sprintf("/%s/_count", index), "")
	if err != nil {
		return 0, err
	}
	var resp struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse count of %s: %w", index, err)
	}
	if resp.Count == nil {
		return 0, nil
	}
	return *resp.Count, nil
}

func (s *SearchChecker) WaitForDocument(ctx context.Context, index, id, field, value string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		return s.DocumentHasField(ctx, index, id, field, value)
	}, wait.WithName(fmt.Sprintf("%s has %s/%s with %s=%s", s.engine.Name(), index, id, field, value)))
}

func (s *SearchChecker) WaitForEmpty(ctx context.Context, index string, timeout time.Duration) error {
	return wait.ForCondition(ctx, timeout, func(ctx context.Context) (bool, error) {
		n, err := s.DocumentCount(ctx, index)
		return n == 0, err
	}, wait.WithName(fmt.Sprintf("%s index %s is empty", s.engine.Name(), index)))
}
