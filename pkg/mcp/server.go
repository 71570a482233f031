// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes registered operators, operator selection and skill
// ranking as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/operators"
	"github.com/skutner/ploinky-sub003/pkg/skills"
)

// Tool names served next to the operators. Operator names cannot contain
// an underscore, so they never collide.
const (
	ToolChooseOperator = "choose_operator"
	ToolRankSkills     = "rank_skills"
)

// Server wraps the mcp-go server.
type Server struct {
	mcpServer *server.MCPServer
	operators *operators.Registry
	selector  *operators.Selector
	agent     *agent.Record
	threshold float64
	skills    *skills.Registry
	filter    func(ctx context.Context, operator string) bool
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSelector adds the choose_operator tool, answered by sel on behalf of rec.
func WithSelector(sel *operators.Selector, rec *agent.Record, threshold float64) ServerOption {
	return func(s *Server) {
		s.selector = sel
		s.agent = rec
		s.threshold = threshold
	}
}

// WithSkills adds the rank_skills tool.
func WithSkills(reg *skills.Registry) ServerOption {
	return func(s *Server) { s.skills = reg }
}

// WithFilter publishes only the operators filter accepts.
func WithFilter(filter func(ctx context.Context, operator string) bool) ServerOption {
	return func(s *Server) { s.filter = filter }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server publishing every operator in reg.
func NewServer(name, version string, reg *operators.Registry, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version),
		operators: reg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Sync()
	if s.selector != nil {
		s.mcpServer.AddTool(mcp.NewTool(ToolChooseOperator,
			mcp.WithDescription("Pick the operators best suited to a task description."),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs to be done")),
			mcp.WithString("mode", mcp.Description("fast or deep")),
			mcp.WithNumber("threshold", mcp.Description("Minimum confidence between 0 and 1")),
		), s.chooseOperator)
	}
	if s.skills != nil {
		s.mcpServer.AddTool(mcp.NewTool(ToolRankSkills,
			mcp.WithDescription("Rank registered skills against a query for a role."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language request")),
			mcp.WithString("role", mcp.Description("Caller role used to filter skills")),
		), s.rankSkills)
	}
	return s
}

// Sync publishes operators registered after the server was created.
func (s *Server) Sync() {
	if s.operators == nil {
		return
	}
	for _, op := range s.operators.List() {
		if s.mcpServer.GetTool(op.Name) != nil {
			continue
		}
		if s.filter != nil && !s.filter(context.Background(), op.Name) {
			s.logger.Debug("mcp.operator.withheld", slog.String("operator", op.Name))
			continue
		}
		name := op.Name
		tool := mcp.NewTool(name, mcp.WithDescription(op.Description))
		s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.callOperator(ctx, name, request.GetArguments())
		})
	}
}

func (s *Server) callOperator(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	out, err := s.operators.Call(ctx, name, args)
	if err != nil {
		s.logger.WarnContext(ctx, "mcp.operator.failed",
			slog.String("operator", name),
			slog.String("error", err.Error()))
		return mcp.NewToolResultErrorFromErr(fmt.Sprintf("operator %s failed", name), err), nil
	}
	return textResult(out)
}

func (s *Server) chooseOperator(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := request.GetString("mode", "")
	threshold := request.GetFloat("threshold", s.threshold)
	res, err := s.selector.Choose(ctx, s.agent, description, mode, threshold)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("operator selection failed", err), nil
	}
	return textResult(res)
}

func (s *Server) rankSkills(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ranked, err := s.skills.RankScored(query, request.GetString("role", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("skill ranking failed", err), nil
	}
	return textResult(ranked)
}

func textResult(v any) (*mcp.CallToolResult, error) {
	if text, ok := v.(string); ok {
		return mcp.NewToolResultText(text), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("result is not JSON-serializable", err), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// Tools returns the names of the published tools.
func (s *Server) Tools() []string {
	tools := s.mcpServer.ListTools()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	return names
}

// ServeStdio serves the tools over stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
