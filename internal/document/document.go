// Package document holds the uploaded-document model and decides how an
// upload is processed: as a PDF that has to be rasterized, or as a single
// raster image.
package document

// RawDocument is an uploaded byte buffer plus the client's hints about it.
// The hints are advisory only; neither is checked against the content.
type RawDocument struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Empty reports whether the upload carries no bytes.
func (d RawDocument) Empty() bool {
	return len(d.Data) == 0
}

// Kind returns the classification of the document based on its hints.
func (d RawDocument) Kind() Kind {
	return Classify(d.ContentType, d.Filename)
}
