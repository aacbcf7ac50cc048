package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/starford/panes/internal/apperr"
	"github.com/starford/panes/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testStore(t *testing.T) *Store {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(fs)
}

func TestSave_AndPath(t *testing.T) {
	s := testStore(t)
	a, err := s.Save("diagram.png", pngHeader)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a.URL != "/assets/diagram.png" || a.Size != int64(len(pngHeader)) {
		t.Errorf("asset = %+v", a)
	}
	if MarkdownImage(a) != "![diagram.png](/assets/diagram.png)" {
		t.Errorf("markdown = %q", MarkdownImage(a))
	}
	p, err := s.Path("diagram.png")
	if err != nil || !strings.HasSuffix(p, "/assets/diagram.png") {
		t.Errorf("Path = %q, %v", p, err)
	}
	if _, err := s.Save("diagram.png", pngHeader); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := s.Path("missing.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestSave_Rejects(t *testing.T) {
	s := testStore(t)
	cases := map[string]struct {
		name string
		data []byte
		want error
	}{
		"traversal":     {"../evil.png", pngHeader, ErrBadName},
		"separator":     {"a/b.png", pngHeader, ErrBadName},
		"hidden":        {".env", pngHeader, ErrBadName},
		"extension":     {"script.js", []byte("alert(1)"), ErrUnsupported},
		"magic":         {"fake.png", []byte("<html>not png</html>"), ErrUnsupported},
		"svg no tag":    {"x.svg", []byte("<html></html>"), ErrUnsupported},
		"empty name":    {"", pngHeader, ErrBadName},
		"html disguise": {"page.gif", []byte("<!DOCTYPE html>"), ErrUnsupported},
	}
	for name, c := range cases {
		if _, err := s.Save(c.name, c.data); !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", name, err, c.want)
		}
	}
}

func TestSave_SVG(t *testing.T) {
	s := testStore(t)
	if _, err := s.Save("icon.svg", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)); err != nil {
		t.Errorf("Save svg: %v", err)
	}
}

func TestFetch_DataURI(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	data, ext, err := Fetch(context.Background(), uri)
	if err != nil {
		t.Fatal(err)
	}
	if ext != ".png" || string(data) != string(pngHeader) {
		t.Errorf("ext = %q len = %d", ext, len(data))
	}
	if _, _, err := Fetch(context.Background(), "data:text/plain;base64,aGk="); !errors.Is(err, ErrUnsupported) {
		t.Errorf("text/plain err = %v", err)
	}
	if _, _, err := Fetch(context.Background(), "data:image/png,raw"); err == nil {
		t.Error("expected error for non-base64 URI")
	}
}

func TestFetch_BlocksLoopbackAndSchemes(t *testing.T) {
	for _, u := range []string{"http://127.0.0.1/x.png", "http://[::1]/x.png", "http://169.254.169.254/latest", "ftp://example.com/x.png", "file:///etc/passwd"} {
		if _, _, err := Fetch(context.Background(), u); err == nil {
			t.Errorf("Fetch(%q) succeeded", u)
		}
	}
}

func TestDialControl_ChecksDialledAddress(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "[::1]:443", "169.254.169.254:80", "garbage"} {
		if err := dialControl("tcp", addr, nil); err == nil {
			t.Errorf("dialControl(%q) allowed", addr)
		}
	}
	if err := dialControl("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public address refused: %v", err)
	}
	if err := checkBlockedHost("::1"); err == nil {
		t.Error("IPv6 loopback allowed")
	}
}

func TestSanitizeAndDerive(t *testing.T) {
	if got := SanitizeFilename("../../my photo (1).png"); got != "my_photo__1_.png" {
		t.Errorf("SanitizeFilename = %q", got)
	}
	if got := FilenameFromURL("https://cdn.test/img/cat.jpg?x=1", ".png"); got != "cat.jpg" {
		t.Errorf("FilenameFromURL = %q", got)
	}
	if got := FilenameFromURL("data:image/png;base64,AAAA", ".png"); !strings.HasSuffix(got, ".png") || len(got) != 36+4 {
		t.Errorf("FilenameFromURL(data) = %q", got)
	}
}
