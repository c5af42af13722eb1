package recognition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Keys accepted for object-shaped items, in lookup order.
var (
	bboxKeys       = []string{"bbox", "box", "polygon"}
	textKeys       = []string{"text"}
	confidenceKeys = []string{"confidence", "conf", "score"}
)

// NormalizeItems converts raw engine items into Detections, in order.
// Malformed items are skipped and reported in the second return value; the
// remaining items are still returned.
func NormalizeItems(items []any) ([]Detection, []*MalformedItemError) {
	dets := make([]Detection, 0, len(items))
	var bad []*MalformedItemError
	for i, item := range items {
		det, err := NormalizeItem(item)
		if err != nil {
			bad = append(bad, &MalformedItemError{Index: i, Reason: err.Error()})
			continue
		}
		dets = append(dets, det)
	}
	return dets, bad
}

// NormalizeItem converts one raw engine item into a Detection.
//
// Two shapes are understood:
//   - a tuple (slice or array) [bbox, text] or [bbox, text, confidence];
//   - an object (map with string keys) with "bbox"/"box"/"polygon", "text"
//     and optionally "confidence"/"conf"/"score".
//
// The bbox is a list of points, each exactly two numbers; a nil or empty
// bbox is kept as absent. Text is coerced from any value. Confidence is
// absent when missing, nil or not a finite number; zero is kept.
func NormalizeItem(item any) (det Detection, err error) {
	// Reflection over foreign values must never take the pipeline down.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while normalizing: %v", r)
		}
	}()

	if item == nil {
		return Detection{}, fmt.Errorf("nil item")
	}

	var rawBox, rawText, rawConf any
	var hasText, hasConf bool

	if m, ok := asStringMap(item); ok {
		rawBox, _ = lookup(m, bboxKeys)
		rawText, hasText = lookup(m, textKeys)
		rawConf, hasConf = lookup(m, confidenceKeys)
	} else if fields, ok := asSlice(item); ok {
		switch len(fields) {
		case 2:
			rawBox, rawText, hasText = fields[0], fields[1], true
		case 3:
			rawBox, rawText, hasText = fields[0], fields[1], true
			rawConf, hasConf = fields[2], true
		default:
			return Detection{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
		}
	} else {
		return Detection{}, fmt.Errorf("unsupported item type %T", item)
	}

	if !hasText {
		return Detection{}, fmt.Errorf("missing text")
	}

	box, err := coerceBBox(rawBox)
	if err != nil {
		return Detection{}, fmt.Errorf("bbox: %w", err)
	}

	det = Detection{
		BBox: box,
		Text: coerceText(rawText),
	}
	if hasConf {
		det.Confidence = coerceConfidence(rawConf)
	}
	return det, nil
}

func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func asStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice returns the elements of any slice or array value except strings
// and byte slices.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, true
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceBBox(v any) (BBox, error) {
	if v == nil {
		return nil, nil
	}
	points, ok := asSlice(v)
	if !ok {
		return nil, fmt.Errorf("expected a list of points, got %T", v)
	}
	if len(points) == 0 {
		return nil, nil
	}
	box := make(BBox, 0, len(points))
	for i, p := range points {
		coords, ok := asSlice(p)
		if !ok {
			return nil, fmt.Errorf("point %d: expected a coordinate pair, got %T", i, p)
		}
		if len(coords) != 2 {
			return nil, fmt.Errorf("point %d: expected 2 coordinates, got %d", i, len(coords))
		}
		x, okX := toFloat(coords[0])
		y, okY := toFloat(coords[1])
		if !okX || !okY || !finite(x) || !finite(y) {
			return nil, fmt.Errorf("point %d: non-numeric coordinate %v", i, coords)
		}
		box = append(box, Point{x, y})
	}
	return box, nil
}

func coerceText(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []byte:
		s = string(t)
	case []rune:
		s = string(t)
	case fmt.Stringer:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		s = fmt.Sprint(t)
	}
	return norm.NFC.String(strings.ToValidUTF8(s, "�"))
}

// coerceConfidence returns nil for an absent or unusable value and a pointer
// to the number otherwise. Zero is a value, not absence.
func coerceConfidence(v any) *float64 {
	if v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok || !finite(f) {
		return nil
	}
	return &f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Pointer:
		if rv.IsNil() {
			return 0, false
		}
		return toFloat(rv.Elem().Interface())
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
