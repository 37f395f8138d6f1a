package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mafia-dossier/internal/analytics"
	"mafia-dossier/internal/query"
)

// PlayerParams параметры инструментов, работающих с одним игроком
type PlayerParams struct {
	Nickname string `json:"nickname" mcp:"exact nickname of the player as it was recorded"`
}

// HistoryMCPServer отдаёт досье игроков только на чтение
type HistoryMCPServer struct {
	store  query.Reader
	engine *query.Engine
}

func NewHistoryMCPServer(store query.Reader, engine *query.Engine) *HistoryMCPServer {
	return &HistoryMCPServer{store: store, engine: engine}
}

// ListPlayerHistory возвращает все записи об игроке и статистику по ним
func (s *HistoryMCPServer) ListPlayerHistory(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[PlayerParams]) (*mcp.CallToolResultFor[any], error) {
	nickname := params.Arguments.Nickname
	log.Printf("📖 MCP Server: Listing history of %q", nickname)
	if strings.TrimSpace(nickname) == "" {
		return errorResult("nickname is required"), nil
	}

	recs, err := s.store.ReadAll(ctx, nickname)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read history: %v", err)), nil
	}
	if len(recs) == 0 {
		return textResult(fmt.Sprintf("No records for player %q", nickname)), nil
	}
	return textResult(analytics.ForParticipant(recs).String() + "\n" + s.engine.Listing(nickname, recs)), nil
}

// SummarizePlayer просит LLM составить портрет игрока
func (s *HistoryMCPServer) SummarizePlayer(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[PlayerParams]) (*mcp.CallToolResultFor[any], error) {
	nickname := params.Arguments.Nickname
	log.Printf("🤖 MCP Server: Summarizing %q", nickname)
	if strings.TrimSpace(nickname) == "" {
		return errorResult("nickname is required"), nil
	}

	summary, err := s.engine.Summarize(ctx, nickname)
	switch {
	case errors.Is(err, query.ErrEmptyHistory):
		return textResult(fmt.Sprintf("No records for player %q", nickname)), nil
	case err != nil:
		return errorResult(fmt.Sprintf("Summary failed: %v", err)), nil
	}
	return textResult(summary), nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "❌ " + text}},
	}
}
