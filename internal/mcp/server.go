package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/preparer"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/internal/storage"
)

// ServerName is the MCP server name
const ServerName = "gamerec"

// Recommender is the part of ranking.Engine the tools use.
type Recommender interface {
	Recommend(ctx context.Context, req ranking.Request) (*ranking.Response, error)
	Genres() ([]string, error)
	Snapshot() (*snapshot.Snapshot, error)
}

// Deps are the collaborators of the MCP server. Preparer and Holder are
// optional; without them prepare_catalog is not registered.
type Deps struct {
	Engine   Recommender
	Storage  storage.Storage
	Preparer *preparer.Preparer
	Holder   *snapshot.Holder
	Build    index.Builder
	Prepare  *preparer.Config

	// OnSwap runs after prepare_catalog installs a new snapshot.
	OnSwap func(*snapshot.Snapshot)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps, version string) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("mcp: storage is required")
	}

	s := &Server{
		mcp:  server.NewMCPServer(ServerName, version),
		deps: deps,
	}
	s.registerTools()
	return s, nil
}

// Serve speaks MCP on stdin/stdout until ctx is canceled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen speaks MCP over the given streams.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(recommendGamesTool(), s.handleRecommendGames)
	s.mcp.AddTool(listGenresTool(), s.handleListGenres)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	if s.deps.Preparer != nil && s.deps.Holder != nil {
		s.mcp.AddTool(prepareCatalogTool(), s.handlePrepareCatalog)
	}
}
