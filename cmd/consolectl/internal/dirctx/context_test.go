package dirctx

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir temp: %v", err)
	}
	return tmp
}

func TestValidateValidContext(t *testing.T) {
	dc := &DirectoryContext{
		Version:   ConsoleFileVersion,
		ServerURL: "http://localhost:8080",
		ReturnTo:  "/users?page=2",
		UpdatedAt: time.Now(),
	}
	if err := dc.Validate(); err != nil {
		t.Fatalf("expected valid context, got error: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		ctx  DirectoryContext
	}{
		{"wrong_version", DirectoryContext{Version: "999"}},
		{"relative_server", DirectoryContext{Version: ConsoleFileVersion, ServerURL: "localhost:8080/api"}},
		{"return_to_not_path", DirectoryContext{Version: ConsoleFileVersion, ReturnTo: "users"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.ctx.Validate(); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestReadContextMissingReturnsNil(t *testing.T) {
	chdirTemp(t)
	ctx, err := ReadContext()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != nil {
		t.Fatalf("expected nil context when .console missing")
	}
}

func TestWriteAndReadContext_RoundTrip(t *testing.T) {
	tmp := chdirTemp(t)
	dc := &DirectoryContext{
		Version:   ConsoleFileVersion,
		ServerURL: "http://example",
		UpdatedAt: time.Now().UTC(),
	}
	if err := WriteContext(dc); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmp, ConsoleFileName)); err != nil {
		t.Fatalf(".console not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, ConsoleFileName+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := ReadContext()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.ServerURL != dc.ServerURL || got.Version != ConsoleFileVersion {
		t.Fatalf("mismatch after round trip: %+v vs %+v", got, dc)
	}
}

func TestWriteContextRejectsInvalid(t *testing.T) {
	chdirTemp(t)
	if err := WriteContext(&DirectoryContext{Version: "bad"}); err == nil {
		t.Fatalf("expected error writing invalid context")
	}
}

func TestReadContextCorruptedJSON(t *testing.T) {
	chdirTemp(t)
	if err := os.WriteFile(ConsoleFileName, []byte("{not-json}"), 0644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if ctx, err := ReadContext(); err == nil || ctx != nil {
		t.Fatalf("expected error and nil context for corrupt JSON")
	}
}

func TestReturnTo(t *testing.T) {
	chdirTemp(t)

	if loc, err := TakeReturnTo(); err != nil || loc != "" {
		t.Fatalf("expected nothing recorded, got %q, %v", loc, err)
	}

	if err := SetReturnTo("http://console.test", "/finance"); err != nil {
		t.Fatalf("set: %v", err)
	}
	server, err := ServerURL()
	if err != nil || server != "http://console.test" {
		t.Fatalf("server url = %q, %v", server, err)
	}

	loc, err := TakeReturnTo()
	if err != nil || loc != "/finance" {
		t.Fatalf("take = %q, %v", loc, err)
	}
	if loc, _ := TakeReturnTo(); loc != "" {
		t.Fatalf("return_to should be cleared, got %q", loc)
	}

	server, _ = ServerURL()
	if server != "http://console.test" {
		t.Fatalf("server url should survive take, got %q", server)
	}
}

func TestSetReturnToRejectsNonPath(t *testing.T) {
	chdirTemp(t)
	if err := SetReturnTo("", "https://evil.example/"); err == nil {
		t.Fatalf("expected error for absolute URL location")
	}
}
