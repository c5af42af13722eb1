package raster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/testutil"
)

func TestPageCount(t *testing.T) {
	n, err := PageCount(testutil.TextPDF(t, "one", "two"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPageCount_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not a pdf", data: []byte("hello world")},
		{name: "header only", data: []byte("%PDF-1.7\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PageCount(tt.data)
			var invalid *InvalidPDFError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Error(), "invalid pdf: ")
		})
	}
}

func TestPageLimit(t *testing.T) {
	assert.Equal(t, 3, pageLimit(3, 5))
	assert.Equal(t, 5, pageLimit(12, 5))
	assert.Equal(t, 5, pageLimit(5, 5))
	assert.Equal(t, 0, pageLimit(0, 5))
}

func TestIsEncryptionError(t *testing.T) {
	assert.True(t, isEncryptionError(errors.New("This file is encrypted")))
	assert.True(t, isEncryptionError(errors.New("please provide the correct password")))
	assert.False(t, isEncryptionError(errors.New("corrupt xref table")))
}
