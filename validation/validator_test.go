package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ValidatorSuite struct {
	suite.Suite
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, &ValidatorSuite{})
}

func (s *ValidatorSuite) TestDecode() {
	testCases := []struct {
		title       string
		body        string
		expectedErr error
		malformed   bool
	}{
		{title: "Error - empty body", body: "", expectedErr: ErrEmptyPayload},
		{title: "Error - whitespace body", body: " \n\t", expectedErr: ErrEmptyPayload},
		{title: "Error - null", body: "null", expectedErr: ErrEmptyPayload},
		{title: "Error - not json", body: "franchise_id=1", malformed: true},
		{title: "Error - array", body: `[{"franchise_id": "fr1"}]`, malformed: true},
		{title: "Error - trailing data", body: `{"a": 1} {"b": 2}`, malformed: true},
		{title: "Success - empty object", body: "{}"},
		{title: "Success - object", body: `{"franchise_id": "fr1", "latency": 12}`},
	}

	for _, tc := range testCases {
		s.Run(tc.title, func() {
			payload, err := Decode([]byte(tc.body))
			switch {
			case tc.expectedErr != nil:
				s.ErrorIs(err, tc.expectedErr)
				s.Nil(payload)
			case tc.malformed:
				var malformed *MalformedPayloadError
				s.ErrorAs(err, &malformed)
				s.True(IsValidation(err))
			default:
				s.NoError(err)
				s.NotNil(payload)
			}
		})
	}
}

func (s *ValidatorSuite) TestDecodeKeepsNumbers() {
	payload, err := Decode([]byte(`{"latency": 12, "scan_data": {"big": 12345678901234567890}}`))
	s.Require().NoError(err)
	s.Equal(json.Number("12"), payload["latency"])

	nested := payload["scan_data"].(map[string]any)
	s.Equal(json.Number("12345678901234567890"), nested["big"])
}

func (s *ValidatorSuite) TestValidate() {
	valid := func() map[string]any {
		return map[string]any{
			"franchise_id": "fr1",
			"ip_address":   "10.0.0.5",
			"scan_data":    map[string]any{"hosts": json.Number("3")},
		}
	}
	with := func(key string, v any) map[string]any {
		p := valid()
		p[key] = v
		return p
	}
	without := func(keys ...string) map[string]any {
		p := valid()
		for _, k := range keys {
			delete(p, k)
		}
		return p
	}

	testCases := []struct {
		title            string
		payload          map[string]any
		expectedErr      error
		expectedMissing  string
		expectedMismatch *TypeMismatchError
	}{
		{title: "Error - nil payload", payload: nil, expectedErr: ErrEmptyPayload},
		{title: "Error - empty object", payload: map[string]any{}, expectedMissing: "franchise_id"},
		{title: "Error - missing franchise_id first", payload: without("franchise_id", "scan_data"), expectedMissing: "franchise_id"},
		{title: "Error - missing ip_address", payload: without("ip_address"), expectedMissing: "ip_address"},
		{title: "Error - missing scan_data", payload: without("scan_data"), expectedMissing: "scan_data"},
		{title: "Error - presence checked before types", payload: map[string]any{"franchise_id": 123, "ip_address": "x"}, expectedMissing: "scan_data"},
		{title: "Error - blank franchise_id", payload: with("franchise_id", "  "), expectedMissing: "franchise_id"},
		{title: "Error - blank ip_address", payload: with("ip_address", ""), expectedMissing: "ip_address"},
		{
			title:            "Error - numeric franchise_id",
			payload:          with("franchise_id", json.Number("123")),
			expectedMismatch: &TypeMismatchError{Field: "franchise_id", Expected: Text, Got: "number"},
		},
		{
			title:            "Error - null ip_address",
			payload:          with("ip_address", nil),
			expectedMismatch: &TypeMismatchError{Field: "ip_address", Expected: Text, Got: "null"},
		},
		{
			title:            "Error - scan_data is text",
			payload:          with("scan_data", "hosts=3"),
			expectedMismatch: &TypeMismatchError{Field: "scan_data", Expected: StructuredMap, Got: "string"},
		},
		{
			title:            "Error - scan_data is a list",
			payload:          with("scan_data", []any{"a"}),
			expectedMismatch: &TypeMismatchError{Field: "scan_data", Expected: StructuredMap, Got: "array"},
		},
		{
			title:            "Error - fractional latency",
			payload:          with("latency", json.Number("1.5")),
			expectedMismatch: &TypeMismatchError{Field: "latency", Expected: Integer, Got: "number"},
		},
		{
			title:            "Error - textual connected_devices",
			payload:          with("connected_devices", "4"),
			expectedMismatch: &TypeMismatchError{Field: "connected_devices", Expected: Integer, Got: "string"},
		},
		{
			title:            "Error - boolean latency",
			payload:          with("latency", true),
			expectedMismatch: &TypeMismatchError{Field: "latency", Expected: Integer, Got: "boolean"},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.title, func() {
			res, err := Validate(tc.payload)
			s.Nil(res)
			s.Require().Error(err)
			s.True(IsValidation(err))

			switch {
			case tc.expectedErr != nil:
				s.ErrorIs(err, tc.expectedErr)
			case tc.expectedMissing != "":
				var missing *MissingFieldError
				s.Require().ErrorAs(err, &missing)
				s.Equal(tc.expectedMissing, missing.Field)
			default:
				var mismatch *TypeMismatchError
				s.Require().ErrorAs(err, &mismatch)
				s.Equal(tc.expectedMismatch, mismatch)
			}
		})
	}
}

func (s *ValidatorSuite) TestValidateDefaults() {
	res, err := Validate(map[string]any{
		"franchise_id": "fr1",
		"ip_address":   "10.0.0.5",
		"scan_data":    map[string]any{"hosts": json.Number("3")},
	})
	s.Require().NoError(err)
	s.Equal("fr1", res.FranchiseID)
	s.Equal("10.0.0.5", res.IPAddress)
	s.Zero(res.ConnectedDevices)
	s.Zero(res.Latency)
	s.JSONEq(`{"hosts": 3}`, string(res.ScanData))
	s.Zero(res.ID)
}

func (s *ValidatorSuite) TestValidateIntegers() {
	testCases := []struct {
		title    string
		value    any
		expected int64
	}{
		{title: "null", value: nil, expected: 0},
		{title: "json number", value: json.Number("42"), expected: 42},
		{title: "integral float in exponent form", value: json.Number("1e3"), expected: 1000},
		{title: "float64", value: float64(7), expected: 7},
		{title: "int", value: 9, expected: 9},
		{title: "negative", value: json.Number("-2"), expected: -2},
	}

	for _, tc := range testCases {
		s.Run(tc.title, func() {
			res, err := Validate(map[string]any{
				"franchise_id":      "fr1",
				"ip_address":        "10.0.0.5",
				"scan_data":         map[string]any{},
				"connected_devices": tc.value,
				"latency":           tc.value,
			})
			s.Require().NoError(err)
			s.Equal(tc.expected, res.ConnectedDevices)
			s.Equal(tc.expected, res.Latency)
			s.Equal("{}", string(res.ScanData))
		})
	}
}

func (s *ValidatorSuite) TestErrorMessages() {
	s.Equal("missing field: ip_address", (&MissingFieldError{Field: "ip_address"}).Error())
	s.Equal("franchise_id must be text, got number",
		(&TypeMismatchError{Field: "franchise_id", Expected: Text, Got: "number"}).Error())
	s.False(IsValidation(nil))
}
