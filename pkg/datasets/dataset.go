package datasets

import (
	"bufio"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"selfevolve/pkg/errors"
)

// CheckSpec declares how an answer is judged for one item. The check is
// data, not code, so evaluation stays a deterministic predicate.
type CheckSpec struct {
	Type     string `json:"type" yaml:"type"` // exact|contains|regex|numeric
	Value    string `json:"value" yaml:"value"`
	Feedback string `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// BenchmarkItem is one problem in a benchmark suite. Immutable once loaded.
type BenchmarkItem struct {
	ID          string    `json:"id" yaml:"id"`
	Problem     string    `json:"problem" yaml:"problem"`
	CodeContext string    `json:"code_context,omitempty" yaml:"code_context,omitempty"`
	Check       CheckSpec `json:"check" yaml:"check"`
}

// Load reads a benchmark suite, dispatching on the file extension:
// .jsonl, .yaml/.yml, or .parquet.
func Load(path string) ([]BenchmarkItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return LoadJSONL(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".parquet":
		return LoadParquet(path)
	default:
		return nil, errors.WithFields(
			errors.New(errors.DatasetNotFound, "unsupported dataset format"),
			errors.Fields{"path": path, "expected": ".jsonl|.yaml|.parquet"})
	}
}

// LoadJSONL reads one BenchmarkItem per line.
func LoadJSONL(path string) ([]BenchmarkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.DatasetNotFound, "failed to open dataset"),
			errors.Fields{"path": path})
	}
	defer f.Close()

	var items []BenchmarkItem
	scanner := bufio.NewScanner(f)
	// Problems carry full code contexts; lines can be large.
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item BenchmarkItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.ValidationFailed, "malformed dataset line"),
				errors.Fields{"path": path, "line": lineNo})
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.DatasetNotFound, "failed to read dataset")
	}

	return items, validateItems(path, items)
}

// LoadYAML reads a suite from a single YAML document: a list of items.
func LoadYAML(path string) ([]BenchmarkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.DatasetNotFound, "failed to open dataset"),
			errors.Fields{"path": path})
	}

	var items []BenchmarkItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ValidationFailed, "malformed dataset file"),
			errors.Fields{"path": path})
	}

	return items, validateItems(path, items)
}

func validateItems(path string, items []BenchmarkItem) error {
	if len(items) == 0 {
		return errors.WithFields(
			errors.New(errors.DatasetNotFound, "dataset contains no items"),
			errors.Fields{"path": path})
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "dataset item missing id"),
				errors.Fields{"path": path})
		}
		if _, dup := seen[item.ID]; dup {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "duplicate dataset item id"),
				errors.Fields{"path": path, "id": item.ID})
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// Sample selects a deterministic subset of items. The same items, fraction
// and seed always yield the same subset, in dataset order. A fraction of 1
// returns every item.
func Sample(items []BenchmarkItem, fraction float64, seed int64) []BenchmarkItem {
	if fraction >= 1.0 {
		out := make([]BenchmarkItem, len(items))
		copy(out, items)
		return out
	}

	k := int(float64(len(items)) * fraction)
	if k < 1 {
		k = 1
	}

	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(len(items))[:k]
	sort.Ints(indices)

	out := make([]BenchmarkItem, 0, k)
	for _, i := range indices {
		out = append(out, items[i])
	}
	return out
}
