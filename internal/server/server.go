// Package server exposes verdict's four operations over a line-oriented
// JSON-RPC stream (MCP-style tools/list and tools/call). Protocol traffic
// stays on stdout; all logging goes to stderr.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"verdict/internal/config"
	"verdict/internal/engine"
	"verdict/internal/logging"
	"verdict/internal/models"
	"verdict/internal/render"
	"verdict/internal/store"
)

const protocolVersion = "2024-11-05"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type toolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Server handles one client over a reader/writer pair.
type Server struct {
	repoPath string
	cfg      *config.Config
	store    *store.Store

	mu  sync.Mutex // guards writes to out
	out io.Writer
}

// New builds a server bound to one repository and store.
func New(repoPath string, cfg *config.Config, st *store.Store) *Server {
	return &Server{repoPath: repoPath, cfg: cfg, store: st}
}

// Serve reads newline-delimited JSON-RPC requests until EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	log := logging.Get(logging.CategoryServer)
	s.out = out

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}})
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue // notification
		}
		s.write(*resp)
	}
	if err := scanner.Err(); err != nil {
		log.Warnw("input stream error", "error", err)
		return err
	}
	return nil
}

func (s *Server) write(resp response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Get(logging.CategoryServer).Warnw("response marshal failed", "error", err)
		return
	}
	s.out.Write(append(data, '\n'))
}

func (s *Server) dispatch(ctx context.Context, req *request) *response {
	log := logging.Get(logging.CategoryServer)
	log.Debugw("request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "verdict", "version": "0.2.0"},
		}}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": toolSpecs()}}
	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return &response{JSONRPC: "2.0", ID: req.ID,
				Error: &rpcError{Code: codeInvalidParams, Message: "invalid params"}}
		}
		text, err := s.callTool(ctx, params.Name, params.Arguments)
		if err != nil {
			log.Warnw("tool call failed", "tool", params.Name, "error", err)
			return &response{JSONRPC: "2.0", ID: req.ID, Result: callResult{
				Content: []textContent{{Type: "text", Text: err.Error()}},
				IsError: true,
			}}
		}
		return &response{JSONRPC: "2.0", ID: req.ID, Result: callResult{
			Content: []textContent{{Type: "text", Text: text}},
		}}
	default:
		if req.ID == nil {
			return nil
		}
		return &response{JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}}
	}
}

func toolSpecs() []toolSpec {
	refProps := map[string]any{
		"ref_before": map[string]any{"type": "string", "description": "Git ref before changes"},
		"ref_after":  map[string]any{"type": "string", "description": "Git ref after changes"},
	}
	assessProps := map[string]any{
		"ref_before":     refProps["ref_before"],
		"ref_after":      refProps["ref_after"],
		"skip_baseline":  map[string]any{"type": "boolean", "description": "Skip flakiness baseline"},
		"skip_mutations": map[string]any{"type": "boolean", "description": "Skip mutation testing"},
	}
	return []toolSpec{
		{
			Name:        "verdict_assess",
			Description: "Run the full assessment pipeline on the current diff or specified refs.",
			InputSchema: map[string]any{"type": "object", "properties": assessProps},
		},
		{
			Name:        "verdict_mutate",
			Description: "Run mutation testing only on changed files.",
			InputSchema: map[string]any{"type": "object", "properties": refProps},
		},
		{
			Name:        "verdict_history",
			Description: "Query past assessments with pagination.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of results"},
				"offset": map[string]any{"type": "integer", "description": "Number of results to skip"},
			}},
		},
		{
			Name:        "verdict_feedback",
			Description: "Submit feedback on an assessment (accepted, rejected, or modified).",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{
				"assessment_id": map[string]any{"type": "string", "description": "Assessment ID"},
				"outcome":       map[string]any{"type": "string", "description": "accepted, rejected, or modified"},
				"context":       map[string]any{"type": "string", "description": "Optional explanation"},
			}, "required": []string{"assessment_id", "outcome"}},
		},
	}
}

type assessArgs struct {
	RefBefore     string `json:"ref_before"`
	RefAfter      string `json:"ref_after"`
	SkipBaseline  bool   `json:"skip_baseline"`
	SkipMutations bool   `json:"skip_mutations"`
}

type historyArgs struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type feedbackArgs struct {
	AssessmentID string `json:"assessment_id"`
	Outcome      string `json:"outcome"`
	Context      string `json:"context"`
}

func (s *Server) callTool(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	maxChars := s.cfg.Pipeline.MaxOutputChars

	switch name {
	case "verdict_assess":
		var args assessArgs
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}
		eng := engine.New(s.store, s.cfg, engine.Options{
			SkipBaseline:  args.SkipBaseline,
			SkipMutations: args.SkipMutations,
		})
		report, err := eng.Assess(ctx, s.repoPath, args.RefBefore, args.RefAfter)
		if err != nil {
			return "", err
		}
		return render.FormatAssessment(report, maxChars), nil

	case "verdict_mutate":
		var args assessArgs
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}
		eng := engine.New(s.store, s.cfg, engine.Options{})
		report, err := eng.MutateOnly(ctx, s.repoPath, args.RefBefore, args.RefAfter)
		if err != nil {
			return "", err
		}
		return render.FormatMutations(report.Mutations, report.MutationScore, maxChars), nil

	case "verdict_history":
		args := historyArgs{Limit: 10}
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if args.Limit <= 0 {
			args.Limit = 10
		}
		assessments, err := s.store.GetAssessments(args.Limit, args.Offset, "")
		if err != nil {
			return "", err
		}
		return render.FormatHistory(assessments, maxChars), nil

	case "verdict_feedback":
		var args feedbackArgs
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		outcome, ok := models.ParseFeedbackOutcome(args.Outcome)
		if !ok {
			return fmt.Sprintf("Invalid outcome '%s'. Must be: accepted, rejected, or modified", args.Outcome), nil
		}
		assessment, err := s.store.GetAssessment(args.AssessmentID)
		if err != nil {
			return "", err
		}
		if assessment == nil {
			return fmt.Sprintf("Assessment '%s' not found", args.AssessmentID), nil
		}
		fb := models.NewFeedback(args.AssessmentID, outcome, args.Context)
		if err := s.store.SaveFeedback(fb); err != nil {
			return "", err
		}
		return render.FormatFeedbackResponse(args.AssessmentID, args.Outcome), nil

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}
