package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/engine"
)

// Service adapts Engine operations to MCP tool calls. Handlers return typed
// results and let the SDK serialize them into the tool response.
type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

// paramsOf builds generation parameters from the tool arguments, filling
// everything left unset from the galaxy defaults.
func paramsOf(args GenerateFieldArgs) galaxy.Params {
	p := galaxy.DefaultParams()
	if args.Count > 0 {
		p.Count = args.Count
	}
	if args.Arms > 0 {
		p.Arms = args.Arms
	}
	if args.Radius > 0 {
		p.Radius = args.Radius
	}
	if args.Twist != 0 {
		p.Twist = args.Twist
	}
	if args.Thickness > 0 {
		p.Thickness = args.Thickness
	}
	if args.Spread > 0 {
		p.Spread = args.Spread
	}
	if args.Seed != 0 {
		p.Seed = args.Seed
	}
	return p
}

// --- Tool Handlers ---

func (s *Service) ListFields(ctx context.Context, req *mcp.CallToolRequest, args ListFieldsArgs) (*mcp.CallToolResult, ListFieldsResult, error) {
	return nil, ListFieldsResult{Fields: s.engine.ListFields()}, nil
}

func (s *Service) GenerateField(ctx context.Context, req *mcp.CallToolRequest, args GenerateFieldArgs) (*mcp.CallToolResult, GenerateFieldResult, error) {
	if args.Name == "" {
		return nil, GenerateFieldResult{}, fmt.Errorf("field name is required")
	}
	params := paramsOf(args)

	_, err := s.engine.CreateField(args.Name, params)
	if errors.Is(err, core.ErrFieldExists) && args.Replace {
		_, err = s.engine.RegenerateField(args.Name, params)
	}
	if err != nil {
		return nil, GenerateFieldResult{}, err
	}

	info, err := s.engine.Info(args.Name)
	if err != nil {
		return nil, GenerateFieldResult{}, err
	}
	return nil, GenerateFieldResult{Field: info}, nil
}

func (s *Service) FieldInfo(ctx context.Context, req *mcp.CallToolRequest, args FieldInfoArgs) (*mcp.CallToolResult, FieldInfoResult, error) {
	info, err := s.engine.Info(args.Name)
	if err != nil {
		return nil, FieldInfoResult{}, err
	}
	return nil, FieldInfoResult{Field: info}, nil
}

func (s *Service) AssignAnchors(ctx context.Context, req *mcp.CallToolRequest, args AssignAnchorsArgs) (*mcp.CallToolResult, AssignAnchorsResult, error) {
	if len(args.Targets) == 0 {
		return nil, AssignAnchorsResult{}, fmt.Errorf("targets must not be empty")
	}

	// The synchronous path: an MCP client blocks on the call anyway, so
	// there is nothing to win by going through the offload worker.
	anchors, err := s.engine.AssignAnchors(args.Field, args.Targets, args.Labels, args.Step)
	if err != nil {
		return nil, AssignAnchorsResult{}, err
	}

	result := AssignAnchorsResult{Anchors: anchors}
	if set, err := s.engine.Anchors(args.Field); err == nil && set != nil {
		result.Generation = set.Generation
	}
	return nil, result, nil
}

func (s *Service) PickRay(ctx context.Context, req *mcp.CallToolRequest, args PickRayArgs) (*mcp.CallToolResult, PickRayResult, error) {
	ray, err := metric.NewRay(args.Origin, args.Dir)
	if err != nil {
		return nil, PickRayResult{}, err
	}

	pick, err := s.engine.Pick(args.Field, ray, args.Step, args.MaxPerpDist)
	if err != nil {
		return nil, PickRayResult{}, err
	}
	if pick == nil {
		// Nothing within the cutoff. A normal outcome, not an error.
		return nil, PickRayResult{Hit: false}, nil
	}

	pos := pick.Position
	return nil, PickRayResult{
		Hit:        true,
		Index:      pick.Index,
		Position:   &pos,
		PerpDistSq: pick.PerpDistSq,
	}, nil
}
