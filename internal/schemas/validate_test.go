package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["sources"],
	"properties": {
		"sources": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["url"],
				"properties": {"url": {"type": "string"}}
			}
		}
	}
}`

func TestValidateJSONStringAccepts(t *testing.T) {
	err := ValidateJSONString(testSchema, `{"sources": [{"url": "https://example.com"}]}`)
	assert.NoError(t, err)
}

func TestValidateJSONStringReportsFieldErrors(t *testing.T) {
	err := ValidateJSONString(testSchema, `{"sources": [{"quality": "high"}]}`)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.NotEmpty(t, vErr.Errors)
	assert.Contains(t, vErr.Error(), "url")
}

func TestValidateJSONStringMissingRequiredRoot(t *testing.T) {
	err := ValidateJSONString(testSchema, `{}`)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestValidateJSONStringUnparseableDocument(t *testing.T) {
	err := ValidateJSONString(testSchema, `{"sources": `)
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}
