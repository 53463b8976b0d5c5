package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"loginguard/internal/normalize"
)

// ParseJSONBytes decodes one login event object. Numbers are kept verbatim so
// unix timestamps survive decoding.
func ParseJSONBytes(data []byte) (*normalize.EventFields, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	fields := ParseJSONMap(obj)
	fields.Raw = string(data)
	return fields, nil
}

// ParseJSONArray accepts either a single object or an array of objects.
func ParseJSONArray(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if trimmed[0] == '[' {
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return obj, nil
}

func ParseJSONMap(obj map[string]any) *normalize.EventFields {
	flat := lowerKeys(obj)
	fields := &normalize.EventFields{
		UserID:    firstString(flat, "user_id", "userid", "uid"),
		Username:  firstString(flat, "username", "user", "login"),
		Timestamp: firstString(flat, "timestamp", "time", "ts"),
		IPAddress: firstString(flat, "ip_address", "ip", "source_ip"),
		Success:   firstString(flat, "success", "result", "status"),
	}
	if loc, ok := flat["location"].(map[string]any); ok {
		loc = lowerKeys(loc)
		fields.Latitude = number(loc, "latitude", "lat")
		fields.Longitude = number(loc, "longitude", "lon", "lng")
		fields.City = firstString(loc, "city")
		fields.Country = firstString(loc, "country")
	}
	if dev, ok := flat["device_info"].(map[string]any); ok {
		dev = lowerKeys(dev)
		fields.HasDevice = true
		fields.Browser = firstString(dev, "browser")
		fields.OS = firstString(dev, "os")
		fields.DeviceType = firstString(dev, "device_type", "type")
	}
	return fields
}

func lowerKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[strings.ToLower(k)] = v
	}
	return out
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func number(obj map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case float64:
			return &v
		}
	}
	return nil
}
