package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/config"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
)

// Render writes env in the configured output mode. For endpoint results, --select projects the
// upstream rows, --results-only emits only the rows, and plain output leads with the summary.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	if result, ok := endpointResult(env.Data); ok {
		return renderEndpoint(w, env, result, settings)
	}

	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.ResultsOnly {
		if settings.OutputMode == "json" {
			return encodeJSON(w, data)
		}
		return renderPlain(w, data)
	}

	if settings.OutputMode == "json" {
		env.Data = data
		return encodeJSON(w, env)
	}
	return renderPlainEnvelope(w, env, data)
}

func renderEndpoint(w io.Writer, env model.Envelope, result model.EndpointResult, settings config.Settings) error {
	rows := any(result.Rows)
	if len(settings.SelectFields) > 0 {
		rows = project(result.Rows, settings.SelectFields)
	}

	if settings.OutputMode == "json" {
		if settings.ResultsOnly {
			return encodeJSON(w, rows)
		}
		projected := result
		if r, ok := rows.([]map[string]any); ok {
			projected.Rows = r
		}
		env.Data = projected
		return encodeJSON(w, env)
	}

	if result.Summary != "" {
		if _, err := fmt.Fprintln(w, result.Summary); err != nil {
			return err
		}
	}
	if settings.ResultsOnly {
		return renderPlain(w, rows)
	}
	return renderPlainEnvelope(w, env, rows)
}

func endpointResult(data any) (model.EndpointResult, bool) {
	switch t := data.(type) {
	case model.EndpointResult:
		return t, true
	case *model.EndpointResult:
		if t != nil {
			return *t, true
		}
	}
	return model.EndpointResult{}, false
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlainEnvelope(w io.Writer, env model.Envelope, data any) error {
	plain := map[string]any{
		"success":  env.Success,
		"data":     data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			item := normalizeValue(v.Index(i).Interface())
			line, err := toLine(item)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		return nil
	default:
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, t[k]))
		}
		return strings.Join(parts, " "), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}
