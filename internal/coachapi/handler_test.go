package coachapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bosun/internal/coach"
	"bosun/internal/gateway"
	"bosun/pkg/auth"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCoach struct {
	reply     coach.Reply
	err       error
	calls     int
	workspace string
	message   string
	history   []coach.Turn
}

func (f *fakeCoach) ProcessCoachMessage(_ context.Context, ws, msg string, history []coach.Turn) (coach.Reply, error) {
	f.calls++
	f.workspace, f.message, f.history = ws, msg, history
	return f.reply, f.err
}

func newRouter(c Coach) *gin.Engine {
	r := gin.New()
	NewHandler(c, nil).Register(r, secret, "svc-token")
	return r
}

func post(t *testing.T, r *gin.Engine, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coach/messages", &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, ws string) string {
	t.Helper()
	tok, err := auth.GenerateJWT("owner-1", ws, "owner", secret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func TestHandleMessage_Success(t *testing.T) {
	fc := &fakeCoach{reply: coach.Reply{
		Text:        "Added Opening hours.",
		ToolResults: []coach.ToolResult{{Name: "create_item", Output: "Added Opening hours.", OK: true}},
	}}
	r := newRouter(fc)

	w := post(t, r, token(t, "ws-1"), MessageRequest{
		Message: "  we open at 9  ",
		History: []coach.Turn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fc.workspace != "ws-1" || fc.message != "we open at 9" || len(fc.history) != 2 {
		t.Fatalf("unexpected call: ws=%q msg=%q history=%d", fc.workspace, fc.message, len(fc.history))
	}

	var resp MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "Added Opening hours." || len(resp.Tools) != 1 || resp.Tools[0].Name != "create_item" || !resp.Tools[0].OK {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleMessage_EmptyToolsSerializeAsArray(t *testing.T) {
	r := newRouter(&fakeCoach{reply: coach.Reply{Text: "Done."}})
	w := post(t, r, token(t, "ws-1"), MessageRequest{Message: "thanks"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"tools":[]`)) {
		t.Fatalf("expected empty tools array, got %s", w.Body.String())
	}
}

func TestHandleMessage_ServiceTokenUsesWorkspaceHeader(t *testing.T) {
	fc := &fakeCoach{reply: coach.Reply{Text: "ok"}}
	r := newRouter(fc)

	body, _ := json.Marshal(MessageRequest{Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coach/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer svc-token")
	req.Header.Set("X-Workspace-ID", "ws-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || fc.workspace != "ws-9" {
		t.Fatalf("expected ws-9 call, got %d %q", w.Code, fc.workspace)
	}
}

func TestHandleMessage_Rejections(t *testing.T) {
	long := bytes.Repeat([]byte("a"), maxMessageLength+1)
	tests := []struct {
		name  string
		token string
		body  any
		code  int
	}{
		{"no auth", "", MessageRequest{Message: "hi"}, http.StatusUnauthorized},
		{"bad token", "nope", MessageRequest{Message: "hi"}, http.StatusUnauthorized},
		{"bad json", "jwt", "{not json", http.StatusBadRequest},
		{"blank message", "jwt", MessageRequest{Message: "   "}, http.StatusBadRequest},
		{"too long", "jwt", MessageRequest{Message: string(long)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCoach{}
			tok := tt.token
			if tok == "jwt" {
				tok = token(t, "ws-1")
			}
			w := post(t, newRouter(fc), tok, tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if fc.calls != 0 {
				t.Fatalf("coach should not run, got %d calls", fc.calls)
			}
		})
	}
}

func TestHandleMessage_ErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		tag  string
	}{
		{fmt.Errorf("coach client: %w", gateway.ErrWorkspaceSuspended), http.StatusForbidden, "workspace_suspended"},
		{gateway.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{gateway.ErrBudgetExceeded, http.StatusTooManyRequests, "budget_exceeded"},
		{gateway.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("%w: redis down", gateway.ErrQuotaUnavailable), http.StatusServiceUnavailable, "gateway_error"},
		{errors.New("provider 500"), http.StatusBadGateway, "gateway_error"},
	}
	for _, tt := range tests {
		w := post(t, newRouter(&fakeCoach{err: tt.err}), token(t, "ws-1"), MessageRequest{Message: "hi"})
		if w.Code != tt.code {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.code, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["code"] != tt.tag {
			t.Fatalf("%v: expected code %q, got %q", tt.err, tt.tag, body["code"])
		}
	}
}
