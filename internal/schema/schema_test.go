package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customerSchema() *Schema {
	return Object(map[string]*Schema{
		"name":  String("Full customer name"),
		"email": String("Contact email address"),
		"limit": Integer("Maximum number of rows to return"),
		"tags":  Array("Labels", String("One label")),
		"address": Object(map[string]*Schema{
			"city": String("City"),
			"zip":  String("Postal code"),
		}, "city"),
		"status": StringEnum("Lifecycle status", "active", "archived"),
		"vip":    Boolean("Preferred customer flag"),
		"score":  Number("Internal ranking"),
	}, "name")
}

func TestValidate(t *testing.T) {
	s := customerSchema()

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{name: "minimal valid", args: `{"name":"Acme GmbH"}`},
		{name: "all fields valid", args: `{"name":"Acme","email":"x@y.z","limit":20,"tags":["a","b"],"address":{"city":"Berlin","zip":"10115"},"status":"active","vip":true,"score":4.5}`},
		{name: "missing required", args: `{"email":"x@y.z"}`, wantErr: "field 'name': required field is missing"},
		{name: "required null", args: `{"name":null}`, wantErr: "field 'name': required field is missing"},
		{name: "not an object", args: `[1,2]`, wantErr: "arguments are not a JSON object"},
		{name: "wrong string type", args: `{"name":42}`, wantErr: "field 'name': must be a string"},
		{name: "wrong integer type", args: `{"name":"a","limit":"ten"}`, wantErr: "field 'limit': must be an integer"},
		{name: "fractional integer", args: `{"name":"a","limit":2.5}`, wantErr: "field 'limit': must be an integer"},
		{name: "wrong boolean type", args: `{"name":"a","vip":"yes"}`, wantErr: "field 'vip': must be a boolean"},
		{name: "wrong number type", args: `{"name":"a","score":"high"}`, wantErr: "field 'score': must be a number"},
		{name: "enum violation", args: `{"name":"a","status":"deleted"}`, wantErr: "field 'status': must be one of: active, archived"},
		{name: "array item type", args: `{"name":"a","tags":["ok",7]}`, wantErr: "field 'tags[1]': must be a string"},
		{name: "nested object missing required", args: `{"name":"a","address":{"zip":"10115"}}`, wantErr: "field 'address.city': required field is missing"},
		{name: "nested object wrong type", args: `{"name":"a","address":"Berlin"}`, wantErr: "arguments are not a JSON object"},
		{name: "undeclared fields ignored", args: `{"name":"a","nonsense":123}`},
		{name: "optional null ignored", args: `{"name":"a","email":null}`},
		{name: "empty payload missing required", args: ``, wantErr: "field 'name': required field is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(json.RawMessage(tt.args))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRootMustBeObject(t *testing.T) {
	err := String("nope").Validate(json.RawMessage(`"hi"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema root must be an object")
}

func TestSchemaMarshalsToProviderShape(t *testing.T) {
	s := Object(map[string]*Schema{
		"status": StringEnum("Invoice status", "draft", "sent", "paid"),
		"limit":  Integer("Max rows"),
	}, "status")

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, []any{"status"}, decoded["required"])

	props, ok := decoded["properties"].(map[string]any)
	require.True(t, ok)
	status, ok := props["status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", status["type"])
	assert.Equal(t, []any{"draft", "sent", "paid"}, status["enum"])
}
