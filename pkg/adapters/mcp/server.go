// Package mcp exposes an Engine as Model Context Protocol tools so agents can
// hold a conversation with the assistant.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/carebot"
	"github.com/aretw0/carebot/internal/logging"
	httpadapter "github.com/aretw0/carebot/pkg/adapters/http"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const graphURI = "carebot://graph"

// Engine is the part of carebot.Engine the tools use.
type Engine interface {
	Send(ctx context.Context, sessionID, text string) (*carebot.Reply, error)
	State(ctx context.Context, sessionID string) (*domain.State, error)
	Reset(ctx context.Context, sessionID string) error
	Graph() string
}

// SendArgs are the arguments of send_message.
type SendArgs struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// ConversationArgs identify a conversation.
type ConversationArgs struct {
	ConversationID string `json:"conversation_id"`
}

// MessageResult is the structured output of send_message.
type MessageResult struct {
	ConversationID string `json:"conversation_id" jsonschema_description:"The conversation the reply belongs to"`
	Text           string `json:"text" jsonschema_description:"The assistant reply, Markdown"`
	Intent         string `json:"intent" jsonschema_description:"The classified intent of the message"`
	Failure        string `json:"failure,omitempty" jsonschema_description:"Failure kind when the turn did not complete normally"`
	AwaitingAnswer bool   `json:"awaiting_answer" jsonschema_description:"True when the next message must be yes or no"`
}

// Server wraps the engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates the server and registers its tools and resources.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("carebot-mcp", carebot.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over HTTP with server-sent events until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	send := mcp.NewTool("send_message",
		mcp.WithDescription("Send one user message to a patient-records conversation and get the assistant reply. Conversations are created on first use."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Stable identifier of the conversation")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The user message")),
		mcp.WithOutputSchema[MessageResult](),
	)
	s.mcpServer.AddTool(send, mcp.NewStructuredToolHandler(s.handleSend))

	reset := mcp.NewTool("reset_conversation",
		mcp.WithDescription("Forget a conversation and everything in progress in it."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Identifier of the conversation")),
	)
	s.mcpServer.AddTool(reset, mcp.NewTypedToolHandler(s.handleReset))

	inspect := mcp.NewTool("get_conversation",
		mcp.WithDescription("Return the redacted state snapshot of a conversation."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Identifier of the conversation")),
	)
	s.mcpServer.AddTool(inspect, mcp.NewTypedToolHandler(s.handleInspect))
}

func (s *Server) handleSend(ctx context.Context, _ mcp.CallToolRequest, args SendArgs) (MessageResult, error) {
	if args.ConversationID == "" {
		return MessageResult{}, errors.New("conversation_id is required")
	}
	text, err := httpadapter.SanitizeMessage(args.Text)
	if err != nil {
		return MessageResult{}, err
	}
	reply, err := s.engine.Send(ctx, args.ConversationID, text)
	if err != nil {
		s.logger.WarnContext(ctx, "MCP send_message failed", "conversation_id", args.ConversationID, "error", err)
		return MessageResult{}, fmt.Errorf("send failed: %w", err)
	}

	out := MessageResult{
		ConversationID: args.ConversationID,
		Text:           reply.Text,
		Intent:         string(reply.Intent),
	}
	if reply.Failure != nil {
		out.Failure = string(reply.Failure.Kind)
	}
	if reply.State != nil {
		out.AwaitingAnswer = reply.State.ConfirmationRequired
	}
	return out, nil
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest, args ConversationArgs) (*mcp.CallToolResult, error) {
	err := s.engine.Reset(ctx, args.ConversationID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return mcp.NewToolResultText("conversation " + args.ConversationID + " reset"), nil
}

func (s *Server) handleInspect(ctx context.Context, _ mcp.CallToolRequest, args ConversationArgs) (*mcp.CallToolResult, error) {
	state, err := s.engine.State(ctx, args.ConversationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conversation unavailable: %v", err)), nil
	}
	return mcp.NewToolResultStructuredOnly(state.Snapshot()), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Conversation step graph",
		mcp.WithResourceDescription("Mermaid flowchart of every step and the tokens that route between them"),
		mcp.WithMIMEType("text/vnd.mermaid"),
	), s.readGraph)
}

func (s *Server) readGraph(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      graphURI,
			MIMEType: "text/vnd.mermaid",
			Text:     s.engine.Graph(),
		},
	}, nil
}
