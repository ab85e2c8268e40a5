package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		client := NewClient("http://localhost:3000/")
		if client.baseURL != "http://localhost:3000" {
			t.Errorf("expected baseURL http://localhost:3000, got %s", client.baseURL)
		}
		if client.renderTimeout != DefaultRenderTimeout {
			t.Errorf("expected default render timeout, got %s", client.renderTimeout)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		client := NewClient("http://localhost:3000", WithHTTPClient(customClient), WithRenderTimeout(5*time.Second))
		if client.httpClient != customClient {
			t.Error("expected custom HTTP client to be set")
		}
		if client.renderTimeout != 5*time.Second {
			t.Errorf("expected 5s render timeout, got %s", client.renderTimeout)
		}
	})

	t.Run("ignores non-positive timeout", func(t *testing.T) {
		client := NewClient("http://localhost:3000", WithRenderTimeout(0))
		if client.renderTimeout != DefaultRenderTimeout {
			t.Errorf("expected default render timeout, got %s", client.renderTimeout)
		}
	})
}

func TestClient_RenderPDF(t *testing.T) {
	t.Run("returns pdf bytes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/pdf" {
				t.Errorf("expected path /api/v1/pdf, got %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}

			var req PDFRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if req.Format != "A4" || !req.PrintBackground {
				t.Errorf("expected A4 with background, got %+v", req)
			}
			if req.HTML != "<html>slip</html>" {
				t.Errorf("unexpected html %q", req.HTML)
			}
			if req.Timeout != 60000 {
				t.Errorf("expected timeout 60000, got %d", req.Timeout)
			}

			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.7\n..."))
		}))
		defer server.Close()

		pdf, err := NewClient(server.URL).RenderPDF(context.Background(), "<html>slip</html>")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(pdf) != "%PDF-1.7\n..." {
			t.Errorf("unexpected body %q", pdf)
		}
	})

	t.Run("rejects non pdf body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>oops</html>"))
		}))
		defer server.Close()

		_, err := NewClient(server.URL).RenderPDF(context.Background(), "<html></html>")
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected RenderError, got %v", err)
		}
		if renderErr.StatusCode != 0 {
			t.Errorf("expected no status code, got %d", renderErr.StatusCode)
		}
	})

	t.Run("surfaces sidecar error message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"success":false,"error":"browser crashed"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL).RenderPDF(context.Background(), "<html></html>")
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected RenderError, got %v", err)
		}
		if renderErr.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", renderErr.StatusCode)
		}
		if renderErr.Message != "browser crashed" {
			t.Errorf("expected sidecar message, got %q", renderErr.Message)
		}
	})

	t.Run("times out", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(server.URL, WithRenderTimeout(50*time.Millisecond))
		start := time.Now()
		_, err := client.RenderPDF(context.Background(), "<html></html>")
		if err == nil {
			t.Fatal("expected timeout error")
		}
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected RenderError, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded in chain, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("render was not bounded, took %s", elapsed)
		}
	})

	t.Run("unreachable sidecar", func(t *testing.T) {
		_, err := NewClient("http://127.0.0.1:1").RenderPDF(context.Background(), "<html></html>")
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			t.Fatalf("expected RenderError, got %v", err)
		}
	})
}

func TestClient_Health(t *testing.T) {
	t.Run("successful health check", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				t.Errorf("expected path /health, got %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: "1.0.0", BrowserReady: true, Uptime: 100})
		}))
		defer server.Close()

		health, err := NewClient(server.URL).Health(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if health.Status != "ok" || !health.BrowserReady {
			t.Errorf("unexpected health %+v", health)
		}
	})

	t.Run("health check failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("service unavailable"))
		}))
		defer server.Close()

		if _, err := NewClient(server.URL).Health(context.Background()); err == nil {
			t.Fatal("expected error for unhealthy service")
		}
	})
}

func TestClient_IsReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if !NewClient(server.URL).IsReady(context.Background()) {
		t.Error("expected sidecar to be ready")
	}
	if NewClient("http://127.0.0.1:1").IsReady(context.Background()) {
		t.Error("expected unreachable sidecar to be not ready")
	}
}
