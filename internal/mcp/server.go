package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/starfielddb/starfielddb/pkg/engine"
)

func NewMCPServer(eng *engine.Engine) *mcp.Server {
	service := NewService(eng)

	// Create Server instance
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "StarfieldDB",
		Version: "0.2.1",
	}, nil) // Options can be nil for default

	// Register Tools using the Generic AddTool which inspects structs!

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_fields",
		Description: "List the hosted star fields with their point counts, parameters and session state.",
	}, service.ListFields)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "generate_field",
		Description: "Generate a procedural spiral-galaxy point field. Deterministic for a given seed.",
	}, service.GenerateField)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "field_info",
		Description: "Inspect a single field: point count, generation, bounds and current selection.",
	}, service.FieldInfo)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "assign_anchors",
		Description: "Resolve the nearest point for each world-space target (e.g. to place labels on a galaxy).",
	}, service.AssignAnchors)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "pick_ray",
		Description: "Cast a ray into a field and return the point closest to it, if any lies within the cutoff.",
	}, service.PickRay)

	return s
}

// Serve runs the tool surface over stdio until the client closes the pipe.
func Serve(ctx context.Context, eng *engine.Engine) error {
	return NewMCPServer(eng).Run(ctx, &mcp.StdioTransport{})
}
