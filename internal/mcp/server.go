package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issuetracker/internal/issues"
)

// Server exposes the issue operations as MCP tools.
type Server struct {
	issues  *issues.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *issues.Service, version string) *Server {
	return &Server{issues: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issuetracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.searchIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// jsonResult marshals v as the tool's text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// failureResult reports an operation failure with the same body the HTTP API sends.
func failureResult(err error) (*mcp.CallToolResult, error) {
	body, _ := issues.FailureBody(err)
	data, mErr := json.Marshal(body)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultError(string(data)), nil
}

// payloadFrom returns the tool arguments minus the project, as an issue payload.
func payloadFrom(request mcp.CallToolRequest) issues.Payload {
	p := issues.Payload{}
	for k, v := range request.GetArguments() {
		if k == "project" {
			continue
		}
		p[k] = v
	}
	return p
}

// issues_search
func (s *Server) searchIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_search",
		mcp.WithDescription("Search a project's issues. Every filter is an exact match on the issue field of the same name (_id, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on). Returns a JSON array of issues."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithObject("filters", mcp.Description("Field name to exact value, all values as strings")),
	)
	return tool, s.handleSearchIssues
}

func (s *Server) handleSearchIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	filters := map[string]string{}
	if raw, ok := request.GetArguments()["filters"].(map[string]any); ok {
		for k, v := range raw {
			filters[k] = fmt.Sprint(v)
		}
	}

	found, err := s.issues.Search(ctx, project, filters)
	if err != nil {
		return failureResult(err)
	}
	return jsonResult(found)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_create",
		mcp.WithDescription("Create an open issue in a project. Returns the created issue as JSON."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("issue_title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("issue_text", mcp.Required(), mcp.Description("Issue text")),
		mcp.WithString("created_by", mcp.Required(), mcp.Description("Author")),
		mcp.WithString("assigned_to", mcp.Description("Assignee (default empty)")),
		mcp.WithString("status_text", mcp.Description("Free-form status (default empty)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	issue, err := s.issues.Create(ctx, project, payloadFrom(request))
	if err != nil {
		return failureResult(err)
	}
	return jsonResult(issue)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_update",
		mcp.WithDescription(`Update fields of an issue. Send _id plus at least one of issue_title, issue_text, created_by, assigned_to, status_text, open. Empty assigned_to or status_text clears the field; other empty strings are ignored. open must be the string "true" to reopen; any other value closes the issue.`),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("issue_title", mcp.Description("New title")),
		mcp.WithString("issue_text", mcp.Description("New text")),
		mcp.WithString("created_by", mcp.Description("New author")),
		mcp.WithString("assigned_to", mcp.Description("New assignee")),
		mcp.WithString("status_text", mcp.Description("New status text")),
		mcp.WithString("open", mcp.Description(`"true" to reopen, "false" to close`)),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	id, err := s.issues.Update(ctx, project, payloadFrom(request))
	if err != nil {
		return failureResult(err)
	}
	return jsonResult(issues.ResultBody{Result: issues.ResultUpdated, ID: id})
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Permanently delete an issue from a project."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	id, err := s.issues.Delete(ctx, project, payloadFrom(request))
	if err != nil {
		return failureResult(err)
	}
	return jsonResult(issues.ResultBody{Result: issues.ResultDeleted, ID: id})
}
