package datasets

import (
	"context"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"selfevolve/pkg/errors"
)

// LoadParquet reads a benchmark suite from a parquet file with columns
// id, problem, code_context, check_type, check_value and optionally
// check_feedback. Published benchmark dumps ship in this format.
func LoadParquet(path string) ([]BenchmarkItem, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.DatasetNotFound, "failed to open parquet file"),
			errors.Fields{"path": path})
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "failed to read parquet schema")
	}

	required := []string{"id", "problem", "code_context", "check_type", "check_value"}
	indices := make(map[string]int, len(required))
	for _, name := range required {
		fieldIndices := schema.FieldIndices(name)
		if len(fieldIndices) == 0 {
			return nil, errors.WithFields(
				errors.New(errors.ValidationFailed, "required column not found in parquet schema"),
				errors.Fields{"path": path, "column": name})
		}
		indices[name] = fieldIndices[0]
	}
	feedbackIdx := -1
	if fi := schema.FieldIndices("check_feedback"); len(fi) > 0 {
		feedbackIdx = fi[0]
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "failed to read parquet table")
	}
	defer table.Release()

	n := int(table.NumRows())
	items := make([]BenchmarkItem, 0, n)

	columns := make(map[string][]string, len(indices))
	for name, idx := range indices {
		values, err := stringColumn(table.Column(idx))
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{"path": path})
		}
		columns[name] = values
	}

	ids := columns["id"]
	problems := columns["problem"]
	contexts := columns["code_context"]
	checkTypes := columns["check_type"]
	checkValues := columns["check_value"]
	var feedbacks []string
	if feedbackIdx >= 0 {
		feedbacks, err = stringColumn(table.Column(feedbackIdx))
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{"path": path})
		}
	}

	for i := 0; i < n; i++ {
		item := BenchmarkItem{
			ID:          ids[i],
			Problem:     problems[i],
			CodeContext: contexts[i],
			Check: CheckSpec{
				Type:  checkTypes[i],
				Value: checkValues[i],
			},
		}
		if feedbacks != nil {
			item.Check.Feedback = feedbacks[i]
		}
		items = append(items, item)
	}

	return items, validateItems(path, items)
}

// stringColumn flattens a (possibly chunked) string column. A column whose
// declared type is not string fails validation instead of panicking.
func stringColumn(col *arrow.Column) ([]string, error) {
	out := make([]string, 0, col.Len())
	for _, chunk := range col.Data().Chunks() {
		strs, ok := chunk.(*array.String)
		if !ok {
			return nil, errors.WithFields(
				errors.New(errors.ValidationFailed, "parquet column is not a string column"),
				errors.Fields{"column": col.Name(), "type": chunk.DataType().String()})
		}
		for i := 0; i < strs.Len(); i++ {
			out = append(out, strs.Value(i))
		}
	}
	return out, nil
}
