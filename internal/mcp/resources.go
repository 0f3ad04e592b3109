package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	s.resources = map[string]mcp.ResourceHandler{}
	s.addJSONResource(&mcp.Resource{
		Name:        "status",
		URI:         "amandocs://status",
		Description: "Full service status: collections, queue, monitor and embedder",
	}, func(ctx context.Context) (any, error) {
		return s.backend.Status(ctx)
	})
	s.addJSONResource(&mcp.Resource{
		Name:        "search_stats",
		URI:         "amandocs://searches",
		Description: "Search telemetry for this session: top terms, empty queries and latency buckets",
	}, func(ctx context.Context) (any, error) {
		st, err := s.backend.Status(ctx)
		if err != nil {
			return nil, err
		}
		return st.Searches, nil
	})
}

func (s *Server) addJSONResource(r *mcp.Resource, load func(context.Context) (any, error)) {
	r.MIMEType = "application/json"
	h := func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		content, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      r.URI,
					MIMEType: r.MIMEType,
					Text:     string(content),
				},
			},
		}, nil
	}
	s.mcp.AddResource(r, h)
	s.resources[r.URI] = h
}

// ReadResource reads one of the server's resources by URI and returns its text.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	h, ok := s.resources[uri]
	if !ok {
		return "", &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource '" + uri + "' not found."}
	}
	res, err := h(ctx, &mcp.ReadResourceRequest{})
	if err != nil {
		return "", err
	}
	return res.Contents[0].Text, nil
}
