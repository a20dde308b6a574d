package collection

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Shape is the layout a list response arrived in
type Shape int

const (
	// ShapeUnknown is anything that is neither an array nor an envelope
	ShapeUnknown Shape = iota
	// ShapeArray is a bare JSON array of items
	ShapeArray
	// ShapeEnvelope is {"data": [...], "total": N}
	ShapeEnvelope
)

// String returns the shape name used in logs
func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// NormalizePage turns a list response into a Page. Total defaults to the number of items when
// the body carries none. Unknown shapes yield an empty page and ErrShapeMismatch.
func NormalizePage(body []byte) (Page, Shape, error) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return Page{}, ShapeUnknown, fmt.Errorf("%w: body is not JSON", ErrShapeMismatch)
	}

	parsed := gjson.ParseBytes(body)
	switch {
	case parsed.IsArray():
		items, err := decodeItems(parsed.Raw)
		if err != nil {
			return Page{}, ShapeUnknown, err
		}
		return Page{Items: items, Total: len(items)}, ShapeArray, nil

	case parsed.IsObject():
		data := parsed.Get("data")
		if !data.Exists() || !(data.IsArray() || data.Type == gjson.Null) {
			return Page{}, ShapeUnknown, fmt.Errorf("%w: object without a data array", ErrShapeMismatch)
		}
		var items []Item
		if data.IsArray() {
			var err error
			if items, err = decodeItems(data.Raw); err != nil {
				return Page{}, ShapeUnknown, err
			}
		}
		total := len(items)
		if t := parsed.Get("total"); t.Type == gjson.Number {
			total = max(int(t.Int()), 0)
		}
		return Page{Items: items, Total: total}, ShapeEnvelope, nil

	default:
		return Page{}, ShapeUnknown, fmt.Errorf("%w: %s body", ErrShapeMismatch, parsed.Type)
	}
}

func decodeItems(raw string) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrShapeMismatch, i)
		}
	}
	return items, nil
}

// DecodeRecord parses a single record returned by a mutation.
// It returns nil when the body is empty, is not a JSON object or carries no identity, so status
// bodies such as {"message":"updated"} read as "no record". An envelope {"data": {...}} is unwrapped.
func DecodeRecord(body []byte) Item {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil
	}
	if data := parsed.Get("data"); data.IsObject() {
		parsed = data
	}

	var item Item
	if err := json.Unmarshal([]byte(parsed.Raw), &item); err != nil {
		return nil
	}
	if _, ok := item.ID(); !ok {
		return nil
	}
	return item
}
