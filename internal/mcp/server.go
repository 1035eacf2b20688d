package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const protocolVersion = "2024-11-05"

// Server implements an MCP stdio server that delegates to the HTTP memfold server.
type Server struct {
	serverURL string
	apiKey    string
	client    *http.Client
}

// NewServer creates a new MCP server.
func NewServer(serverURL, apiKey string) *Server {
	return &Server{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Run starts the stdio event loop. Blocks until stdin is closed.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(os.Stdin)
	// Increase buffer for large messages
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, -32700, "parse error: "+err.Error())
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			s.writeResponse(resp)
		}
	}

	return scanner.Err()
}

func (s *Server) handleRequest(req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		// Notification, no response expected.
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]string{}}
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "method not found: " + req.Method},
		}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: ServerCapabilities{
				Tools: &ToolCapabilities{},
			},
			ServerInfo: ServerInfo{
				Name:    "memfold",
				Version: "1.0.0",
			},
		},
	}
}

func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  ToolsListResult{Tools: ToolDefinitions()},
	}
}

func (s *Server) handleToolsCall(req *Request) *Response {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return s.errorResponse(req.ID, -32602, "invalid params")
	}

	var params CallToolParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "invalid params: "+err.Error())
	}

	result, isError := s.dispatchTool(params.Name, params.Arguments)

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *Server) dispatchTool(name string, args map[string]any) (string, bool) {
	switch name {
	case "memory_store":
		return s.toolStore(args)
	case "memory_list":
		return s.toolList(args)
	case "dedup_detect":
		return s.toolDetect(args)
	case "dedup_proposals":
		return s.toolProposals(args)
	case "dedup_preview":
		return s.toolPreview(args)
	case "dedup_approve":
		return s.toolApprove(args)
	case "dedup_reject":
		return s.toolReject(args)
	case "dedup_reverse":
		return s.toolReverse(args)
	case "dedup_stats":
		return s.toolStats(args)
	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// --- Tool implementations (HTTP delegation) ---

func (s *Server) toolStore(args map[string]any) (string, bool) {
	project, _ := args["project"].(string)
	body := map[string]any{
		"content":    args["content"],
		"summary":    args["summary"],
		"memoryType": args["memoryType"],
		"confidence": getFloat(args, "confidence", 0.8),
		"tags":       args["tags"],
	}
	return s.httpPost(projectPath(project, "/memories"), body)
}

func (s *Server) toolList(args map[string]any) (string, bool) {
	project, _ := args["project"].(string)
	q := url.Values{}
	if t, ok := args["memoryType"].(string); ok && t != "" {
		q.Set("type", t)
	}
	q.Set("limit", strconv.Itoa(int(getFloat(args, "limit", 50))))
	if getBool(args, "all", false) {
		q.Set("all", "true")
	}
	return s.httpGet(projectPath(project, "/memories") + "?" + q.Encode())
}

func (s *Server) toolDetect(args map[string]any) (string, bool) {
	project, _ := args["project"].(string)
	body := map[string]any{
		"memoryType":          args["memoryType"],
		"autoCreateProposals": getBool(args, "createProposals", false),
	}
	if th, ok := args["threshold"].(float64); ok {
		body["threshold"] = th
	}
	return s.httpPost(projectPath(project, "/dedup/detect"), body)
}

func (s *Server) toolProposals(args map[string]any) (string, bool) {
	project, _ := args["project"].(string)
	q := url.Values{}
	if st, ok := args["status"].(string); ok && st != "" {
		q.Set("status", st)
	}
	q.Set("limit", strconv.Itoa(int(getFloat(args, "limit", 20))))
	return s.httpGet(projectPath(project, "/dedup/proposals") + "?" + q.Encode())
}

func (s *Server) toolPreview(args map[string]any) (string, bool) {
	id, _ := args["proposalId"].(string)
	return s.httpGet(fmt.Sprintf("/dedup/proposals/%s/preview", id))
}

func (s *Server) toolApprove(args map[string]any) (string, bool) {
	id, _ := args["proposalId"].(string)
	body := map[string]any{
		"reviewNotes": args["reviewNotes"],
	}
	return s.httpPost(fmt.Sprintf("/dedup/proposals/%s/approve", id), body)
}

func (s *Server) toolReject(args map[string]any) (string, bool) {
	id, _ := args["proposalId"].(string)
	body := map[string]any{
		"reviewNotes": args["reviewNotes"],
	}
	return s.httpPost(fmt.Sprintf("/dedup/proposals/%s/reject", id), body)
}

func (s *Server) toolReverse(args map[string]any) (string, bool) {
	id, _ := args["historyId"].(string)
	body := map[string]any{
		"reason":     args["reason"],
		"reversedBy": "mcp",
	}
	return s.httpPost(fmt.Sprintf("/dedup/history/%s/reverse", id), body)
}

func (s *Server) toolStats(args map[string]any) (string, bool) {
	project, _ := args["project"].(string)
	return s.httpGet(projectPath(project, "/dedup/stats"))
}

// projectPath builds a /projects/{name}... path. Project names come from
// tool callers and may contain slashes, so the segment is escaped.
func projectPath(project, suffix string) string {
	return "/projects/" + url.PathEscape(project) + suffix
}

// --- HTTP helpers ---

func (s *Server) httpPost(path string, body any) (string, bool) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("marshal error: %s", err), true
	}

	req, err := http.NewRequest("POST", s.serverURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Sprintf("request error: %s", err), true
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *Server) httpGet(path string) (string, bool) {
	req, err := http.NewRequest("GET", s.serverURL+path, nil)
	if err != nil {
		return fmt.Sprintf("request error: %s", err), true
	}
	return s.do(req)
}

func (s *Server) do(req *http.Request) (string, bool) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("HTTP error: %s", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("read error: %s", err), true
	}

	if resp.StatusCode >= 400 {
		return string(respBody), true
	}

	return string(respBody), false
}

// --- Response helpers ---

func (s *Server) writeResponse(resp *Response) {
	data, _ := json.Marshal(resp)
	fmt.Fprintf(os.Stdout, "%s\n", data)
}

func (s *Server) writeError(id any, code int, message string) {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
	s.writeResponse(resp)
}

func (s *Server) errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// --- Argument helpers ---

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		}
	}
	return fallback
}

func getBool(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
