package chain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcHandler answers from canned results keyed by method. A handler
// returning an error string produces a JSON-RPC error.
type rpcHandler func(params []json.RawMessage) (any, string)

type rpcServer struct {
	mu      sync.Mutex
	methods map[string]rpcHandler
	calls   map[string]int
}

func newRPCServer(t *testing.T, methods map[string]rpcHandler) (*rpcServer, string) {
	t.Helper()

	s := &rpcServer{methods: methods, calls: map[string]int{}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	handler, ok := s.methods[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	} else if result, errMsg := handler(req.Params); errMsg != "" {
		resp["error"] = map[string]any{"code": -5, "message": errMsg}
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func result(v any) rpcHandler {
	return func([]json.RawMessage) (any, string) { return v, "" }
}

func failure(msg string) rpcHandler {
	return func([]json.RawMessage) (any, string) { return nil, msg }
}
