package household

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeResult holds the outcome of decoding one fetched batch.
type DecodeResult struct {
	Records  []RawRecord
	Failures []*DecodeError
}

// DecodeBatch parses every payload independently. A malformed payload is
// reported in Failures and does not stop the rest of the batch.
func DecodeBatch(payloads []Payload) DecodeResult {
	res := DecodeResult{Records: make([]RawRecord, 0, len(payloads))}
	for _, p := range payloads {
		rec, err := DecodeRecord(p)
		if err != nil {
			res.Failures = append(res.Failures, &DecodeError{ObjectID: p.ObjectID, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// DecodeRecord parses a single object body of the form
// {"sensor": ..., "data": {"Time": ..., ...}}.
func DecodeRecord(p Payload) (RawRecord, error) {
	var envelope struct {
		Sensor json.RawMessage `json:"sensor"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(p.Body, &envelope); err != nil {
		return RawRecord{}, err
	}

	sensor, err := decodeSensor(envelope.Sensor)
	if err != nil {
		return RawRecord{}, err
	}
	if sensor == "" {
		sensor = p.SensorHint
	}
	if sensor == "" {
		return RawRecord{}, errors.New("record has no sensor")
	}

	if isNull(envelope.Data) {
		return RawRecord{}, errors.New("record has no data object")
	}
	fields, err := decodeObject(envelope.Data)
	if err != nil {
		return RawRecord{}, fmt.Errorf("data: %w", err)
	}

	return RawRecord{
		ObjectID: p.ObjectID,
		Sensor:   sensor,
		Data:     fields,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeSensor accepts a JSON string or number.
func decodeSensor(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("sensor must be a string or number, got %s", raw)
}

// decodeObject reads a JSON object keeping its keys in document order.
// Duplicate keys keep the first position and the last value.
func decodeObject(raw json.RawMessage) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("not an object")
	}

	var fields []Field
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		if i, dup := seen[key]; dup {
			fields[i].Value = v
			continue
		}
		seen[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: v})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}
