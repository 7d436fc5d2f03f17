package resources

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/classify"
	"github.com/inboxpilot/inboxpilot/internal/schema"
)

// RegisterCatalogResources registers the assistant's fixed vocabularies
// as read-only resources: the classification label set and the sort
// vocabulary. Clients use these to build UIs and to pre-check commands
// without a round trip through an engine.
func RegisterCatalogResources(s *mcpserver.MCPServer) error {
	labelsResource := mcp.NewResource(
		"inbox://labels",
		"Classification Labels",
		mcp.WithResourceDescription("The closed set of labels the classification engine may assign"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(labelsResource, handleLabels)

	sortResource := mcp.NewResource(
		"sort://vocabulary",
		"Sort Vocabulary",
		mcp.WithResourceDescription("Fields and orders a compiled sort rule may use"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(sortResource, handleSortVocabulary)

	return nil
}

func handleLabels(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"labels": classify.Labels,
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(payload),
		},
	}, nil
}

func handleSortVocabulary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload, err := json.MarshalIndent(map[string]any{
		"fields": []string{
			schema.SortFieldReceivedAt,
			schema.SortFieldFrom,
			schema.SortFieldSubject,
			schema.SortFieldClassification,
			schema.SortFieldRead,
		},
		"orders": []string{"asc", "desc"},
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(payload),
		},
	}, nil
}
