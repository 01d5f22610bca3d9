package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/gatepass/internal/session"
)

const testMethod = "/gatepass.v1.Gate/ListEntries"

func newTestSessions(t *testing.T) (*session.Manager, string) {
	t.Helper()
	m, err := session.NewManager(session.Config{Secret: []byte("test-secret")})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	_, token, err := m.Login("guard1", "Security", "1000")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return m, token
}

// sessionHandler returns the user of the session attached by the interceptor.
func sessionHandler(ctx context.Context, _ any) (any, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return "", nil
	}
	return sess.User, nil
}

func TestAuthInterceptor(t *testing.T) {
	sessions, token := newTestSessions(t)
	interceptor := AuthInterceptor(sessions)

	tests := []struct {
		name     string
		method   string
		md       metadata.MD
		wantCode codes.Code
		wantUser string
	}{
		{"health exempt", "/grpc.health.v1.Health/Check", nil, codes.OK, ""},
		{"missing metadata", testMethod, nil, codes.Unauthenticated, ""},
		{"missing header", testMethod, metadata.Pairs("other", "value"), codes.Unauthenticated, ""},
		{"wrong scheme", testMethod, metadata.Pairs("authorization", "Basic "+token), codes.Unauthenticated, ""},
		{"bad token", testMethod, metadata.Pairs("authorization", "Bearer nope"), codes.Unauthenticated, ""},
		{"valid", testMethod, metadata.Pairs("authorization", "Bearer "+token), codes.OK, "guard1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, sessionHandler)
			if status.Code(err) != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", status.Code(err), tt.wantCode, err)
			}
			if err == nil && resp != tt.wantUser {
				t.Errorf("user = %v, want %q", resp, tt.wantUser)
			}
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: testMethod},
		func(context.Context, any) (any, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestAuthMiddleware(t *testing.T) {
	sessions, token := newTestSessions(t)
	handler := AuthMiddleware(sessions, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := currentSession(r); sess != nil {
			writeJSON(w, http.StatusOK, map[string]string{"user": sess.User})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"health exempt", http.MethodGet, "/v1/health", "", http.StatusOK},
		{"login exempt", http.MethodPost, "/v1/sessions", "", http.StatusOK},
		{"no header", http.MethodGet, "/v1/entries", "", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/v1/entries", "Basic " + token, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/v1/entries", "Bearer wrong", http.StatusUnauthorized},
		{"valid", http.MethodGet, "/v1/entries", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestNewGRPCServer(t *testing.T) {
	sessions, _ := newTestSessions(t)
	srv, hs := NewGRPCServer(sessions)
	defer srv.Stop()
	if _, ok := srv.GetServiceInfo()["grpc.health.v1.Health"]; !ok {
		t.Error("health service not registered")
	}
	if hs == nil {
		t.Error("nil health server")
	}
}
