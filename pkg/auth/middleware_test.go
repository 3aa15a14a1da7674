package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bosun/pkg/ctxkeys"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, header map[string]string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/ok", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestServiceAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(ServiceAuthMiddleware("token123"))
	r.GET("/ok", func(c *gin.Context) { c.String(200, "ok") })

	if code := serve(r, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", code)
	}
	if code := serve(r, map[string]string{"Authorization": "Bearer wrong"}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", code)
	}
	if code := serve(r, map[string]string{"Authorization": "Bearer token123"}); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestServiceAuthMiddleware_EmptyExpectedRejects(t *testing.T) {
	r := gin.New()
	r.Use(ServiceAuthMiddleware(""))
	r.GET("/ok", func(c *gin.Context) { c.String(200, "ok") })

	if code := serve(r, map[string]string{"Authorization": "Bearer anything"}); code != http.StatusUnauthorized {
		t.Fatalf("expected unconfigured token to reject, got %d", code)
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateJWT("u1", "ws1", "owner", secret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	r := gin.New()
	r.Use(JWTAuthMiddleware(secret, ""))
	r.GET("/ok", func(c *gin.Context) {
		if c.GetString(string(ctxkeys.KeyWorkspaceID)) != "ws1" || ctxkeys.GetUserID(c.Request.Context()) != "u1" {
			t.Errorf("claims not propagated")
		}
		c.String(200, "ok")
	})

	if code := serve(r, map[string]string{"Authorization": "Bearer " + token}); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := serve(r, map[string]string{"Authorization": "Bearer junk"}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for junk token, got %d", code)
	}
}

func TestJWTAuthMiddleware_ServiceTokenNeedsWorkspace(t *testing.T) {
	r := gin.New()
	r.Use(JWTAuthMiddleware([]byte("secret"), "svc"))
	r.GET("/ok", func(c *gin.Context) {
		if ctxkeys.GetWorkspaceID(c.Request.Context()) != "ws9" {
			t.Errorf("expected workspace from header")
		}
		c.String(200, "ok")
	})

	if code := serve(r, map[string]string{"Authorization": "Bearer svc"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without workspace header, got %d", code)
	}
	if code := serve(r, map[string]string{"Authorization": "Bearer svc", "X-Workspace-ID": "ws9"}); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestValidateJWT(t *testing.T) {
	secret := []byte("secret")

	expired, _ := GenerateJWT("u1", "ws1", "owner", secret, -time.Minute)
	if _, err := ValidateJWT(expired, secret); err != ErrExpiredJWT {
		t.Fatalf("expected ErrExpiredJWT, got %v", err)
	}

	noWorkspace, _ := GenerateJWT("u1", "", "owner", secret, time.Minute)
	if _, err := ValidateJWT(noWorkspace, secret); err != ErrMissingSubject {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}

	valid, _ := GenerateJWT("u1", "ws1", "owner", secret, time.Minute)
	if _, err := ValidateJWT(valid, []byte("other")); err != ErrInvalidJWT {
		t.Fatalf("expected ErrInvalidJWT for wrong secret, got %v", err)
	}
}
