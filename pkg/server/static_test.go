package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>app</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "main.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := newSPAHandler(root)
	tests := []struct {
		path string
		want string
	}{
		{"/", "<html>app</html>"},
		{"/assets/main.js", "console.log(1)"},
		{"/cases/42", "<html>app</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://relay"+tt.path, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if body := strings.TrimSpace(rr.Body.String()); body != tt.want {
				t.Fatalf("body = %q, want %q", body, tt.want)
			}
		})
	}
}
