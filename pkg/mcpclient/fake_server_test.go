package mcpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServer is a minimal streamable-HTTP MCP server.
type fakeServer struct {
	*httptest.Server

	mu         sync.Mutex
	sse        bool
	sessions   map[string]bool
	nextID     int
	failNext   []int
	calls      map[string]int
	headers    []http.Header
	pageSize   int
	tools      []Tool
	deleted    []string
	noSessions bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		sessions: map[string]bool{},
		calls:    map[string]int{},
		tools: []Tool{
			{Name: "echo", Description: "Echoes its arguments.", InputSchema: json.RawMessage(`{"type":"object"}`)},
			{Name: "fail", Description: "Always fails."},
			{Name: "broken", Description: "Reports a tool error."},
		},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

// UseSSE makes every response a text/event-stream.
func (f *fakeServer) UseSSE() {
	f.mu.Lock()
	f.sse = true
	f.mu.Unlock()
}

// FailNext makes the next len(statuses) requests answer those statuses.
func (f *fakeServer) FailNext(statuses ...int) {
	f.mu.Lock()
	f.failNext = append(f.failNext, statuses...)
	f.mu.Unlock()
}

// ExpireSessions forgets every session, as a restarted server would.
func (f *fakeServer) ExpireSessions() {
	f.mu.Lock()
	f.sessions = map[string]bool{}
	f.mu.Unlock()
}

func (f *fakeServer) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeServer) LastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1]
}

func (f *fakeServer) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())

	if len(f.failNext) > 0 {
		status := f.failNext[0]
		f.failNext = f.failNext[1:]
		f.calls["failed"]++
		http.Error(w, http.StatusText(status), status)
		return
	}

	if r.Method == http.MethodDelete {
		id := r.Header.Get(HeaderSessionID)
		delete(f.sessions, id)
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req struct {
		ID     *string         `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	f.calls[req.Method]++

	if req.Method != "initialize" && !f.noSessions && !f.sessions[r.Header.Get(HeaderSessionID)] {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if req.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var result any
	var rpcErr *RPCError
	switch req.Method {
	case "initialize":
		if !f.noSessions {
			f.nextID++
			id := "session-" + strconv.Itoa(f.nextID)
			f.sessions[id] = true
			w.Header().Set(HeaderSessionID, id)
		}
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      Implementation{Name: "fake-mcp", Version: "0.1.0"},
		}
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = f.page(req.Params)
	case "tools/call":
		result, rpcErr = f.callTool(req.Params)
	default:
		rpcErr = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	msg := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
	if rpcErr != nil {
		msg["error"] = rpcErr
	} else {
		msg["result"] = result
	}
	body, _ := json.Marshal(msg)

	if f.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		// A server notification precedes the response.
		fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\",\"params\":{}}\n\n")
		fmt.Fprintf(w, "id: 1\nevent: message\ndata: %s\n\n", body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (f *fakeServer) page(params json.RawMessage) listToolsResult {
	var p listToolsParams
	_ = json.Unmarshal(params, &p)
	if f.pageSize == 0 {
		return listToolsResult{Tools: f.tools}
	}
	start, _ := strconv.Atoi(p.Cursor)
	end := min(start+f.pageSize, len(f.tools))
	out := listToolsResult{Tools: f.tools[start:end]}
	if end < len(f.tools) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out
}

func (f *fakeServer) callTool(params json.RawMessage) (any, *RPCError) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "bad params"}
	}
	switch p.Name {
	case "echo":
		text := strings.TrimSpace(string(p.Arguments))
		return ToolResult{
			Content:           []Content{{Type: "text", Text: text}},
			StructuredContent: p.Arguments,
		}, nil
	case "fail":
		return nil, &RPCError{Code: CodeInvalidParams, Message: "missing required argument \"q\""}
	case "broken":
		return ToolResult{Content: []Content{{Type: "text", Text: "upstream search failed"}}, IsError: true}, nil
	default:
		return nil, &RPCError{Code: CodeInternalError, Message: "unknown tool " + p.Name}
	}
}
