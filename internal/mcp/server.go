// Package mcp exposes the advice pipeline as MCP tools so assistants can
// ask for ARAM strategy directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"aramcoach/internal/pipeline"
	"aramcoach/internal/server"
)

// Server wraps a pipeline controller as an MCP server
type Server struct {
	server *gomcp.Server
	ctrl   *pipeline.Controller
	logger *zap.Logger
}

// NewServer creates the MCP server and registers its tools
func NewServer(ctrl *pipeline.Controller, version string, logger *zap.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{ctrl: ctrl, logger: logger.Named("mcp")}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "aramcoach", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server for in-memory transports
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

type preGameInput struct {
	Patch     string   `json:"patch,omitempty" jsonschema:"patch id such as 14.99; defaults to the bundled patch"`
	AllyComp  []string `json:"ally_comp" jsonschema:"champion names on your team"`
	EnemyComp []string `json:"enemy_comp" jsonschema:"champion names on the enemy team"`
}

type inGameInput struct {
	Patch     string   `json:"patch,omitempty" jsonschema:"patch id such as 14.99; defaults to the bundled patch"`
	MyChamp   string   `json:"my_champ" jsonschema:"the champion you are playing"`
	Question  string   `json:"question" jsonschema:"free text question about the current game"`
	EnemyComp []string `json:"enemy_comp,omitempty" jsonschema:"enemy champions currently in the game"`
	AllyComp  []string `json:"ally_comp,omitempty" jsonschema:"allied champions currently in the game"`
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "pre_game_advice",
		Description: "Recommend an ARAM role, build plan and threats for two team compositions. Returns the verified strategy as JSON.",
	}, s.handlePreGame)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ingame_qa",
		Description: "Answer an in-game ARAM question for one champion, optionally given the enemy composition. Returns the verified strategy as JSON.",
	}, s.handleInGame)
}

func (s *Server) handlePreGame(ctx context.Context, _ *gomcp.CallToolRequest, in preGameInput) (*gomcp.CallToolResult, any, error) {
	st, err := s.ctrl.PreGame(ctx, pipeline.PreGameRequest{
		Patch:     in.Patch,
		AllyComp:  in.AllyComp,
		EnemyComp: in.EnemyComp,
	}, nil)
	return s.result(st, err), nil, nil
}

func (s *Server) handleInGame(ctx context.Context, _ *gomcp.CallToolRequest, in inGameInput) (*gomcp.CallToolResult, any, error) {
	req := pipeline.InGameRequest{Patch: in.Patch, MyChamp: in.MyChamp, Question: in.Question}
	if len(in.EnemyComp) > 0 || len(in.AllyComp) > 0 {
		req.State = map[string]any{}
		if len(in.EnemyComp) > 0 {
			req.State["enemy_comp"] = in.EnemyComp
		}
		if len(in.AllyComp) > 0 {
			req.State["ally_comp"] = in.AllyComp
		}
	}
	st, err := s.ctrl.InGame(ctx, req, nil)
	return s.result(st, err), nil, nil
}

// result renders a run as tool content. Failures use the same error bodies
// as the HTTP service.
func (s *Server) result(st *pipeline.State, err error) *gomcp.CallToolResult {
	if err == nil && st != nil && st.Succeeded() {
		data, merr := json.Marshal(st.Final)
		if merr != nil {
			return errorResult(fmt.Sprintf("encoding strategy: %s", merr))
		}
		return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: string(data)}}}
	}

	_, body := server.Classify(st, err)
	s.logger.Info("tool run failed", zap.String("error", body.Error), zap.Error(err))
	data, merr := json.Marshal(body)
	if merr != nil {
		return errorResult(body.Error)
	}
	return errorResult(string(data))
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
