// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Commonplace tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/notestore"
)

// Server wraps the MCP server with Commonplace tools.
type Server struct {
	mcp   *server.MCPServer
	store *notestore.Store
}

// New creates a new MCP server with all Commonplace tools registered.
func New(store *notestore.Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"Commonplace",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, content and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("module", mcp.Description("Optional module to restrict the search to")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by its id, including metadata and links."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Metadata and content MUST follow the "+
			"canonical note format (see the get_note_contract tool or the "+
			"commonplace://note-format resource). The engine assigns the id, "+
			"timestamps and the file location."),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("module", mcp.Description("Target module (defaults to inbox)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body of the note")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical Commonplace note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_module_notes",
		mcp.WithDescription("List all notes in a module, most recently modified first."),
		mcp.WithString("module", mcp.Required(), mcp.Description("Module name")),
	), s.listModuleNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the search index from the note files on disk. "+
			"Use after editing files outside the engine."),
	), s.rebuildIndex)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("commonplace://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical note record format that all stored notes follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	module := ""
	if m, mErr := req.RequireString("module"); mErr == nil {
		module = m
	}
	results, err := s.store.Search(query, module, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	note := models.Note{Content: content}
	if title, tErr := req.RequireString("title"); tErr == nil {
		note.Title = title
	}
	if module, mErr := req.RequireString("module"); mErr == nil {
		note.Module = module
	}
	if rawTags, tagErr := req.RequireString("tags"); tagErr == nil && rawTags != "" {
		for _, t := range strings.Split(rawTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				note.Tags = append(note.Tags, t)
			}
		}
	}

	id, err := s.store.Create(note)
	var lag *apperr.IndexLagError
	switch {
	case err == nil:
	case errors.As(err, &lag):
		return mcp.NewToolResultText(fmt.Sprintf("created: %s (index lagging, rebuild to catch up)", id)), nil
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("created: %s", id)), nil
}

func (s *Server) listModuleNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module, err := req.RequireString("module")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	notes, err := s.store.NotesByModule(module)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var lines []string
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s", n.ID, n.Title))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes in module"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "commonplace://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.store.Backlinks(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	var lines []string
	for _, e := range bl {
		lines = append(lines, fmt.Sprintf("%s\t%s", e.Source, e.Type))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) rebuildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.store.Rebuild()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
