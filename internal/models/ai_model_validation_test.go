package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(name string, drop ...string) map[string]interface{} {
	p := map[string]interface{}{
		"name":        name,
		"type":        "string",
		"required":    true,
		"description": name + " field",
		"example":     "sample",
	}
	for _, k := range drop {
		delete(p, k)
	}
	return p
}

func contract(header, body, response []interface{}) JSON {
	out := JSON{}
	if header != nil {
		out["request_header"] = header
	}
	if body != nil {
		out["request_body"] = body
	}
	if response != nil {
		out["response_parameters"] = response
	}
	return out
}

func TestValidateModelParameters(t *testing.T) {
	none := []interface{}{}
	tests := []struct {
		name    string
		params  JSON
		wantErr bool
	}{
		{
			name: "full contract",
			params: contract(
				[]interface{}{param("Authorization")},
				[]interface{}{param("image"), param("threshold")},
				[]interface{}{param("label")},
			),
		},
		{name: "empty sections", params: contract(none, none, none)},
		{name: "no header section", params: contract(nil, none, none), wantErr: true},
		{name: "no body section", params: contract(none, nil, none), wantErr: true},
		{name: "no response section", params: contract(none, none, nil), wantErr: true},
		{name: "entry without name", params: contract(none, []interface{}{param("image", "name")}, none), wantErr: true},
		{name: "entry without required flag", params: contract(none, []interface{}{param("image", "required")}, none), wantErr: true},
		{name: "entry without example", params: contract(none, none, []interface{}{param("label", "example")}), wantErr: true},
		{
			name: "null example",
			params: func() JSON {
				p := param("label")
				p["example"] = nil
				return contract(none, none, []interface{}{p})
			}(),
			wantErr: true,
		},
		{name: "section is not a list", params: JSON{"request_header": "x", "request_body": none, "response_parameters": none}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelParameters(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateModelParametersUnset(t *testing.T) {
	assert.NoError(t, ValidateModelParameters(nil))
	assert.NoError(t, ValidateModelParameters(JSON{}))
}

func TestDecodeModelParametersAfterScan(t *testing.T) {
	// Round trip through the column type the way a stored model is read back.
	stored := contract([]interface{}{}, []interface{}{param("image")}, []interface{}{})
	raw, err := stored.Value()
	require.NoError(t, err)

	var scanned JSON
	require.NoError(t, scanned.Scan(raw))

	decoded, err := DecodeModelParameters(scanned)
	require.NoError(t, err)
	require.Len(t, decoded.RequestBody, 1)
	assert.Equal(t, "image", decoded.RequestBody[0].Name)
	assert.True(t, *decoded.RequestBody[0].Required)
	assert.Equal(t, "sample", decoded.RequestBody[0].Example)
}

func TestJSONScan(t *testing.T) {
	var j JSON
	require.NoError(t, j.Scan(nil))
	assert.Equal(t, JSON{}, j)
	require.NoError(t, j.Scan(""))
	assert.Equal(t, JSON{}, j)
	require.NoError(t, j.Scan(`{"a":1}`))
	assert.Equal(t, JSON{"a": float64(1)}, j)
	assert.Error(t, j.Scan(42))

	v, err := JSON(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}
