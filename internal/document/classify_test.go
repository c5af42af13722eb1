package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		expected    Kind
	}{
		{name: "pdf media type", contentType: "application/pdf", filename: "upload", expected: KindPDF},
		{name: "pdf media type upper case", contentType: "APPLICATION/PDF", expected: KindPDF},
		{name: "pdf substring in vendor type", contentType: "application/x-pdf", expected: KindPDF},
		{name: "pdf extension", contentType: "application/octet-stream", filename: "scan.pdf", expected: KindPDF},
		{name: "pdf extension upper case", filename: "SCAN.PDF", expected: KindPDF},
		{name: "png", contentType: "image/png", filename: "id.png", expected: KindImage},
		{name: "jpeg without hints", contentType: "", filename: "", expected: KindImage},
		{name: "pdf in middle of filename", filename: "my.pdf.png", expected: KindImage},
		{name: "mislabeled pdf bytes stay image", contentType: "image/jpeg", filename: "passport.jpg", expected: KindImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.contentType, tt.filename))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "pdf", KindPDF.String())
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestRawDocument(t *testing.T) {
	doc := RawDocument{Filename: "a.pdf"}
	assert.True(t, doc.Empty())
	assert.Equal(t, KindPDF, doc.Kind())

	doc = RawDocument{Data: []byte{1}, ContentType: "image/png"}
	assert.False(t, doc.Empty())
	assert.Equal(t, KindImage, doc.Kind())
}
