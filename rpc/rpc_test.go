package rpc_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/rpc"
	"github.com/veilnet/veild/state"
)

func newTestServer() *gin.Engine {
	gin.SetMode(gin.TestMode)
	ledger := state.NewLedger(state.Params{MaxCoinInGroup: 4, StartGroupSize: 4})
	server := rpc.Default(ledger, mempool.New(), nil)
	engine := gin.New()
	engine.POST("/", server.HandleJSONRPC)
	return engine
}

func call(t *testing.T, engine *gin.Engine, method string, params interface{}) rpc.Response {
	t.Helper()
	body, err := json.Marshal(rpc.Request{Version: "2.0", ID: "1", Method: method, Params: params})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp rpc.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("undecodable response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestRPCKnownMethod(t *testing.T) {
	engine := newTestServer()
	resp := call(t, engine, "getlatestgroupid", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if got, ok := resp.Result.(float64); !ok || got != 0 {
		t.Fatalf("fresh ledger should report group id 0, got %v", resp.Result)
	}
}

func TestRPCMethodNotFound(t *testing.T) {
	engine := newTestServer()
	resp := call(t, engine, "nosuchmethod", nil)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method-not-found, got %v", resp.Error)
	}
}

func TestRPCUnknownGroupMapsToNotFoundCode(t *testing.T) {
	engine := newTestServer()
	resp := call(t, engine, "getcoingroupinfo", 9)
	if resp.Error == nil || resp.Error.Code != -32001 {
		t.Fatalf("expected unknown-entity code -32001, got %v", resp.Error)
	}
}

func TestRPCUnknownCoinMapsToNotFoundCode(t *testing.T) {
	engine := newTestServer()
	resp := call(t, engine, "getcoinheightandgroup", strings.Repeat("00", 32))
	if resp.Error == nil || resp.Error.Code != -32001 {
		t.Fatalf("expected unknown-entity code -32001, got %v", resp.Error)
	}
}

func TestRPCMissingArchiveIsInternalError(t *testing.T) {
	engine := newTestServer()
	resp := call(t, engine, "getanonymityset", 1)
	if resp.Error == nil || resp.Error.Code != -32603 {
		t.Fatalf("expected internal error for a node without an archive, got %v", resp.Error)
	}
}
