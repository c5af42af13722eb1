package extract

import "github.com/MeKo-Tech/ocrnlp/internal/recognition"

// Block is one recognized text region in the response.
type Block struct {
	Text       string           `json:"text" yaml:"text"`
	BBox       recognition.BBox `json:"bbox" yaml:"bbox"`
	Confidence *float64         `json:"confidence" yaml:"confidence"`
	Page       int              `json:"page" yaml:"page"`
}

// Result is the outcome of one extraction. Count always equals
// len(Blocks); build it with newResult.
type Result struct {
	Blocks []Block `json:"blocks" yaml:"blocks"`
	Count  int     `json:"count" yaml:"count"`
}

func newResult(blocks []Block) *Result {
	if blocks == nil {
		blocks = []Block{}
	}
	return &Result{Blocks: blocks, Count: len(blocks)}
}

// PageResult is the set of blocks produced for one page.
type PageResult struct {
	Page   int     `json:"page"`
	Blocks []Block `json:"blocks"`
}

// Pages returns the distinct page numbers present, in order of appearance.
func (r *Result) Pages() []int {
	var pages []int
	seen := make(map[int]bool)
	for _, b := range r.Blocks {
		if !seen[b.Page] {
			seen[b.Page] = true
			pages = append(pages, b.Page)
		}
	}
	return pages
}

func toBlocks(dets []recognition.Detection, page int) []Block {
	blocks := make([]Block, len(dets))
	for i, d := range dets {
		blocks[i] = Block{
			Text:       d.Text,
			BBox:       d.BBox,
			Confidence: d.Confidence,
			Page:       page,
		}
	}
	return blocks
}
