package tokenmetrics

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
)

type payloadShape int

const (
	shapeArray payloadShape = iota
	shapeDataArray
	shapeDataObject
	shapeDataNull
)

func (s payloadShape) String() string {
	switch s {
	case shapeArray:
		return "array"
	case shapeDataArray:
		return "data-array"
	case shapeDataObject:
		return "data-object"
	default:
		return "data-null"
	}
}

type payload struct {
	shape payloadShape
	rows  []map[string]any
}

type dataEnvelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodePayload accepts a bare array, {"data": [...]}, or {"data": {...}}. Anything else is an
// upstream error.
func decodePayload(body []byte) (payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return payload{}, clierr.New(clierr.CodeUpstream, "provider returned empty response")
	}
	switch trimmed[0] {
	case '[':
		rows, err := decodeRows(trimmed)
		if err != nil {
			return payload{}, err
		}
		return payload{shape: shapeArray, rows: rows}, nil
	case '{':
		var env dataEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return payload{}, clierr.Wrap(clierr.CodeUpstream, "decode provider JSON", err)
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 {
			msg := "provider response has no data field"
			if env.Message != "" {
				msg += ": " + env.Message
			}
			return payload{}, clierr.New(clierr.CodeUpstream, msg)
		}
		switch data[0] {
		case '[':
			rows, err := decodeRows(data)
			if err != nil {
				return payload{}, err
			}
			return payload{shape: shapeDataArray, rows: rows}, nil
		case '{':
			var row map[string]any
			if err := json.Unmarshal(data, &row); err != nil {
				return payload{}, clierr.Wrap(clierr.CodeUpstream, "decode provider JSON", err)
			}
			return payload{shape: shapeDataObject, rows: []map[string]any{row}}, nil
		}
		if string(data) == "null" {
			return payload{shape: shapeDataNull, rows: []map[string]any{}}, nil
		}
		return payload{}, clierr.New(clierr.CodeUpstream, "provider data field is neither an array nor an object")
	default:
		return payload{}, clierr.New(clierr.CodeUpstream, "unexpected provider response shape")
	}
}

func decodeRows(raw []byte) ([]map[string]any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, clierr.Wrap(clierr.CodeUpstream, "decode provider JSON", err)
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		var row map[string]any
		// Non-object entries carry no columns.
		if err := json.Unmarshal(item, &row); err != nil || row == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CandidateFromRow maps a token row to a candidate. Rows without an id or name are unusable.
func CandidateFromRow(row map[string]any) (model.TokenCandidate, bool) {
	id, ok := intField(row, "TOKEN_ID", "token_id", "id")
	if !ok {
		return model.TokenCandidate{}, false
	}
	name := stringField(row, "TOKEN_NAME", "token_name", "NAME")
	if name == "" {
		return model.TokenCandidate{}, false
	}
	return model.TokenCandidate{
		ID:            id,
		Name:          name,
		Symbol:        stringField(row, "TOKEN_SYMBOL", "token_symbol", "SYMBOL"),
		ExchangeCount: listCount(lookup(row, "EXCHANGE_LIST", "exchange_list", "EXCHANGES")),
		CategoryCount: listCount(lookup(row, "CATEGORY_LIST", "category_list", "CATEGORIES")),
	}, true
}

// lookup returns the first present key, matched case-insensitively.
func lookup(row map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := row[key]; ok && v != nil {
			return v
		}
	}
	for _, key := range keys {
		for k, v := range row {
			if v != nil && strings.EqualFold(k, key) {
				return v
			}
		}
	}
	return nil
}

func stringField(row map[string]any, keys ...string) string {
	switch v := lookup(row, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func intField(row map[string]any, keys ...string) (int64, bool) {
	switch v := lookup(row, keys...).(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func listCount(v any) int {
	switch t := v.(type) {
	case []any:
		return len(t)
	case string:
		count := 0
		for _, part := range strings.Split(t, ",") {
			if strings.TrimSpace(part) != "" {
				count++
			}
		}
		return count
	default:
		return 0
	}
}
