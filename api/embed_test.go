package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec()
	require.NoError(t, err)
	assert.Equal(t, "Rental Admin API", doc.Info.Title)

	item := doc.Paths.Find("/api/v1/applications/{id}/review")
	require.NotNil(t, item)
	op := item.GetOperation(http.MethodPatch)
	require.NotNil(t, op)
	require.NotNil(t, op.RequestBody)
	assert.NotNil(t, op.RequestBody.Value.Content.Get("application/json"))

	assert.Nil(t, doc.Paths.Find("/api/v1/unknown"))
}

func TestDocsPage(t *testing.T) {
	data, err := DocsFS.ReadFile("docs/index.html")
	require.NoError(t, err)
	assert.Contains(t, string(data), "/api/openapi.yaml")
}
