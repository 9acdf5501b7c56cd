package validation

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"nester/models"
)

const (
	FieldFranchiseID      = "franchise_id"
	FieldIPAddress        = "ip_address"
	FieldScanData         = "scan_data"
	FieldConnectedDevices = "connected_devices"
	FieldLatency          = "latency"
)

// checked in this order; the first absent one is reported
var requiredFields = []string{FieldFranchiseID, FieldIPAddress, FieldScanData}

// Decode parses an inbound body into an untyped payload. Numbers are kept as
// json.Number so integers survive untouched into scan_data.
func Decode(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrEmptyPayload
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &MalformedPayloadError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &MalformedPayloadError{Err: errors.New("unexpected data after JSON value")}
	}
	if v == nil {
		return nil, ErrEmptyPayload
	}

	payload, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedPayloadError{Err: errors.Errorf("expected a JSON object, got %s", typeName(v))}
	}
	return payload, nil
}

// Validate checks payload and converts it into a record ready for insertion.
// Nothing is returned unless every check passes.
func Validate(payload map[string]any) (*models.ScanResult, error) {
	if payload == nil {
		return nil, ErrEmptyPayload
	}

	for _, field := range requiredFields {
		if _, ok := payload[field]; !ok {
			return nil, &MissingFieldError{Field: field}
		}
	}

	franchiseID, err := text(payload, FieldFranchiseID)
	if err != nil {
		return nil, err
	}
	ipAddress, err := text(payload, FieldIPAddress)
	if err != nil {
		return nil, err
	}

	scanData, ok := payload[FieldScanData].(map[string]any)
	if !ok {
		return nil, &TypeMismatchError{
			Field:    FieldScanData,
			Expected: StructuredMap,
			Got:      typeName(payload[FieldScanData]),
		}
	}
	serialized, err := json.Marshal(scanData)
	if err != nil {
		return nil, &TypeMismatchError{Field: FieldScanData, Expected: StructuredMap, Got: err.Error()}
	}

	devices, err := integer(payload, FieldConnectedDevices)
	if err != nil {
		return nil, err
	}
	latency, err := integer(payload, FieldLatency)
	if err != nil {
		return nil, err
	}

	return &models.ScanResult{
		FranchiseID:      franchiseID,
		IPAddress:        ipAddress,
		ConnectedDevices: devices,
		Latency:          latency,
		ScanData:         models.Document(serialized),
	}, nil
}

// A blank string counts as missing.
func text(payload map[string]any, field string) (string, error) {
	s, ok := payload[field].(string)
	if !ok {
		return "", &TypeMismatchError{Field: field, Expected: Text, Got: typeName(payload[field])}
	}
	if strings.TrimSpace(s) == "" {
		return "", &MissingFieldError{Field: field}
	}
	return s, nil
}

// Absent and null default to zero. Anything present that is not an integral
// number is rejected.
func integer(payload map[string]any, field string) (int64, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return 0, nil
	}

	mismatch := &TypeMismatchError{Field: field, Expected: Integer, Got: typeName(v)}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, mismatch
		}
		return integral(f, mismatch)
	case float64:
		return integral(n, mismatch)
	case float32:
		return integral(float64(n), mismatch)
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	}
	return 0, mismatch
}

func integral(f float64, mismatch error) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return 0, mismatch
	}
	return int64(f), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64, uint32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}
