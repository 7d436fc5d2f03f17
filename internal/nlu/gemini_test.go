package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"
)

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{}, nil)
	assert.Error(t, err)
}

func TestToGenaiSchema(t *testing.T) {
	schema := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"label": {
				Type: TypeString,
				Enum: []string{"sponsorship", "other"},
			},
			"amount": {Type: TypeNumber},
			"deliverables": {
				Type:  TypeArray,
				Items: &Schema{Type: TypeString},
			},
		},
		Required: []string{"label"},
	}

	out := toGenaiSchema(schema)
	require.NotNil(t, out)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"label"}, out.Required)

	label := out.Properties["label"]
	require.NotNil(t, label)
	assert.Equal(t, genai.TypeString, label.Type)
	assert.Equal(t, []string{"sponsorship", "other"}, label.Enum)

	deliverables := out.Properties["deliverables"]
	require.NotNil(t, deliverables)
	assert.Equal(t, genai.TypeArray, deliverables.Type)
	require.NotNil(t, deliverables.Items)
	assert.Equal(t, genai.TypeString, deliverables.Items.Type)
}

func TestToGenaiSchemaNil(t *testing.T) {
	assert.Nil(t, toGenaiSchema(nil))
}
