package datasets

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfevolve/pkg/errors"
)

func TestStringColumnFlattensChunks(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := array.NewStringBuilder(mem)
	b.AppendValues([]string{"pandas_001", "numpy_002"}, nil)
	first := b.NewStringArray()
	defer first.Release()
	b.AppendValues([]string{"scipy_003"}, nil)
	second := b.NewStringArray()
	defer second.Release()

	chunked := arrow.NewChunked(arrow.BinaryTypes.String, []arrow.Array{first, second})
	defer chunked.Release()
	col := arrow.NewColumn(arrow.Field{Name: "id", Type: arrow.BinaryTypes.String}, chunked)
	defer col.Release()

	values, err := stringColumn(col)
	require.NoError(t, err)
	assert.Equal(t, []string{"pandas_001", "numpy_002", "scipy_003"}, values)
}

func TestStringColumnRejectsNonStringType(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := array.NewInt64Builder(mem)
	b.AppendValues([]int64{1, 2, 3}, nil)
	arr := b.NewInt64Array()
	defer arr.Release()

	chunked := arrow.NewChunked(arrow.PrimitiveTypes.Int64, []arrow.Array{arr})
	defer chunked.Release()
	col := arrow.NewColumn(arrow.Field{Name: "id", Type: arrow.PrimitiveTypes.Int64}, chunked)
	defer col.Release()

	_, err := stringColumn(col)
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "id")
}
