package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileTail(t *testing.T) {
	t.Parallel()

	filePath := filepath.Join(t.TempDir(), "test.log")
	err := os.WriteFile(filePath, []byte("0123456789"), 0644)
	require.NoError(t, err)

	type testCase struct {
		name     string
		maxLen   int
		expected string
	}

	testCases := []testCase{
		{
			name:     "whole file with no limit",
			maxLen:   0,
			expected: "0123456789",
		},
		{
			name:     "whole file when limit exceeds size",
			maxLen:   100,
			expected: "0123456789",
		},
		{
			name:     "tail of file when limit is smaller",
			maxLen:   4,
			expected: "6789",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			data, err := ReadFileTail(filePath, testCase.maxLen)
			assert.NoError(t, err)
			assert.Equal(t, testCase.expected, string(data))
		})
	}
}

func TestReadFileTail_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadFileTail(filepath.Join(t.TempDir(), "does-not-exist.log"), 0)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	values := []int{1, 2, 3, 4, 5, 6}
	even := Filter(values, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4, 6}, even)

	none := Filter(values, func(v int) bool { return v > 10 })
	assert.Nil(t, none)
}
