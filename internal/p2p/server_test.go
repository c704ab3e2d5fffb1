package p2p

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloupeer-io/otaupdate/pkg/options"
)

func startTestServer(t *testing.T, dir string) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	srv := NewShareServer(&options.HttpOptions{Addr: addr}, dir)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never came up")
	return ""
}

func TestShareServerHealthz(t *testing.T) {
	addr := startTestServer(t, t.TempDir())

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestShareServerServesVisibleFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc123"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	addr := startTestServer(t, dir)

	resp, err := http.Get("http://" + addr + "/files/abc123")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Fatalf("body = %q, want %q", body, "payload")
	}
}

func TestShareServerRejectsHiddenFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".abc123"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	addr := startTestServer(t, dir)

	resp, err := http.Get("http://" + addr + "/files/.abc123")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestShareServerRejectsMetaSidecar(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc123.meta"), []byte(`{"size":7}`), 0o644); err != nil {
		t.Fatal(err)
	}
	addr := startTestServer(t, dir)

	resp, err := http.Get("http://" + addr + "/files/abc123.meta")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
