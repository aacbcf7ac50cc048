package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/panes/internal/assets"
	"github.com/starford/panes/internal/pane"
	"github.com/starford/panes/internal/postservice"
	"github.com/starford/panes/internal/testutil"
)

const siteOrigin = "https://blog.example.com"

// testEnv sets up a temp vault, SQLite DB, services, and router for testing.
// An empty authToken means disabled mode; a non-empty one means token mode.
func testEnv(t *testing.T, authToken string) (Services, http.Handler) {
	t.Helper()
	svcs, router, _ := testEnvWithVault(t, authToken != "", authToken)
	return svcs, router
}

func testServices(t *testing.T) (Services, string) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	resolver := testutil.TestResolver()

	sessions := pane.NewSessions(resolver, nil,
		pane.WithTrustedOrigins(siteOrigin),
		pane.WithHoverDelay(20*time.Millisecond),
		pane.WithHideGrace(20*time.Millisecond))
	t.Cleanup(sessions.Close)

	return Services{
		Posts:    postservice.NewService(store, db, testutil.TestPipeline()),
		Sessions: sessions,
		Resolver: resolver,
		Assets:   assets.NewStore(store),
	}, vaultDir
}

func testEnvWithVault(t *testing.T, authEnabled bool, authToken string) (Services, http.Handler, string) {
	t.Helper()
	svcs, vaultDir := testServices(t)
	return svcs, NewRouter(svcs, authEnabled, authToken, nil), vaultDir
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newPost(slug, body string) CreatePostRequest {
	return CreatePostRequest{
		Slug:        slug,
		Title:       "Title of " + slug,
		Date:        "2024-05-01",
		Description: "About " + slug,
		Body:        body,
	}
}

func TestCreateAndGetPost(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/posts", newPost("hello", "Hello [[the demo:demo-artifact]]"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/posts/hello", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var p PostDetail
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Slug != "hello" || p.Title != "Title of hello" {
		t.Errorf("post = %+v", p)
	}
	if len(p.References) != 1 || p.References[0].Target == nil {
		t.Errorf("references = %+v", p.References)
	}
	if w.Header().Get("ETag") != `"`+p.Checksum+`"` {
		t.Errorf("etag = %q", w.Header().Get("ETag"))
	}
}

func TestCreatePost_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := map[string]CreatePostRequest{
		"missing slug":  {Title: "x", Date: "2024-01-01", Description: "d"},
		"bad slug":      newPost("Not A Slug", ""),
		"bad date":      {Slug: "x", Title: "x", Date: "yesterday", Description: "d"},
		"missing title": {Slug: "x", Date: "2024-01-01", Description: "d"},
	}
	for name, req := range cases {
		if w := do(t, router, http.MethodPost, "/posts", req); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%s)", name, w.Code, w.Body.String())
		}
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/posts", newPost("dup", "a")); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/posts", newPost("dup", "b")); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/posts", newPost("lock", "v1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created PostDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	content := strings.Replace(created.Content, "v1", "v2", 1)
	updateBody, _ := json.Marshal(UpdatePostRequest{Content: content})

	req := httptest.NewRequest(http.MethodPut, "/posts/lock", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", `"`+created.Checksum+`"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/posts/lock", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", created.Checksum) // stale now
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdatePost_InvalidAndMissing(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("p", "v1"))

	if w := do(t, router, http.MethodPut, "/posts/p", UpdatePostRequest{Content: "no frontmatter"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid content = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/posts/p", UpdatePostRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/posts/ghost", UpdatePostRequest{Content: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeletePost(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("bye", "gone"))

	if w := do(t, router, http.MethodDelete, "/posts/bye", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/posts/bye", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/posts/bye", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestRenamePost(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("before", "x"))
	do(t, router, http.MethodPost, "/posts", newPost("other", "y"))

	w := do(t, router, http.MethodPost, "/posts/before/rename", RenamePostRequest{Slug: "after"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/posts/after", nil); w.Code != http.StatusOK {
		t.Errorf("get renamed = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/posts/before", nil); w.Code != http.StatusNotFound {
		t.Errorf("get old slug = %d, want 404", w.Code)
	}

	cases := map[string]struct {
		target string
		body   any
		want   int
	}{
		"taken":   {"/posts/after/rename", RenamePostRequest{Slug: "other"}, http.StatusConflict},
		"invalid": {"/posts/after/rename", RenamePostRequest{Slug: "Bad Slug"}, http.StatusBadRequest},
		"empty":   {"/posts/after/rename", RenamePostRequest{}, http.StatusBadRequest},
		"missing": {"/posts/nope/rename", RenamePostRequest{Slug: "x"}, http.StatusNotFound},
	}
	for name, c := range cases {
		if w := do(t, router, http.MethodPost, c.target, c.body); w.Code != c.want {
			t.Errorf("%s: rename = %d, want %d", name, w.Code, c.want)
		}
	}
}

func TestListPosts(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("a", "a"))
	do(t, router, http.MethodPost, "/posts", newPost("b", "b"))
	draft := newPost("c", "c")
	draft.Draft = true
	do(t, router, http.MethodPost, "/posts", draft)

	w := do(t, router, http.MethodGet, "/posts?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp PostListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Posts) != 2 || resp.Total != 2 {
		t.Errorf("published = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/posts?drafts=true", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 {
		t.Errorf("with drafts total = %d, want 3", resp.Total)
	}
}

func TestReferencesBacklinksUnresolved(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("target", "target"))
	do(t, router, http.MethodPost, "/posts", newPost("source", "See [[it:target]], [[bad:javascript:alert(1)]] and [[app:dtd-app]]."))

	w := do(t, router, http.MethodGet, "/posts/source/references", nil)
	var refs ReferencesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &refs)
	if w.Code != http.StatusOK || len(refs.References) != 3 {
		t.Fatalf("references = %d %+v", w.Code, refs)
	}
	if !refs.References[2].External || refs.References[1].Resolved {
		t.Errorf("references = %+v", refs.References)
	}

	w = do(t, router, http.MethodGet, "/posts/target/backlinks", nil)
	var bl BacklinksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &bl)
	if len(bl.Backlinks) != 1 || bl.Backlinks[0].Slug != "source" {
		t.Errorf("backlinks = %+v", bl)
	}

	w = do(t, router, http.MethodGet, "/references/unresolved", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &refs)
	if len(refs.References) != 1 || refs.References[0].Content != "javascript:alert(1)" {
		t.Errorf("unresolved = %+v", refs)
	}

	if w := do(t, router, http.MethodGet, "/posts/nope/references", nil); w.Code != http.StatusNotFound {
		t.Errorf("references of missing post = %d", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/posts", newPost("find", "uniquetoken here"))

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Slug != "find" {
		t.Errorf("search results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(newPost("auth", "test"))
	req := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/posts", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/sessions", CreateSessionRequest{Origin: siteOrigin}); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed session = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/posts", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	// Disabled mode → should not 401. SSE handler will write 200 and block,
	// so we cancel the context after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?topic=x&access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with query token should not 401")
	}

	if w := do(t, router, http.MethodGet, "/events?access_token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") != "" {
		t.Errorf("authorized response carries WWW-Authenticate")
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGET(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodPost, "/posts?access_token=secret123", newPost("q", "x")); w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	svcs, _ := testServices(t)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(svcs, authEnabled, token, sseHandler)
}

// Asset tests.

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func siteRouter(svcs Services, origins ...string) http.Handler {
	r := chi.NewRouter()
	SiteRoutes(r, svcs, origins)
	return r
}

func TestUploadAndServeAsset(t *testing.T) {
	svcs, router, vaultDir := testEnvWithVault(t, false, "")

	w := uploadFile(t, router, "test.png", pngBytes)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AssetUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "test.png" || resp.URL != "/assets/test.png" || resp.Markdown != "![test.png](/assets/test.png)" {
		t.Errorf("resp = %+v", resp)
	}

	data, err := os.ReadFile(filepath.Join(vaultDir, "assets", "test.png"))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Errorf("content mismatch")
	}

	w = do(t, siteRouter(svcs), http.MethodGet, "/assets/test.png", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Errorf("serve = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}

	if w := uploadFile(t, router, "test.png", pngBytes); w.Code != http.StatusConflict {
		t.Errorf("duplicate upload = %d, want 409", w.Code)
	}
}

func TestUploadAsset_Rejected(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, false, "")

	if w := uploadFile(t, router, "fake.png", []byte("<html>not an image</html>")); w.Code != http.StatusBadRequest {
		t.Errorf("mismatched content = %d, want 400", w.Code)
	}
	if w := uploadFile(t, router, "script.js", []byte("alert(1)")); w.Code != http.StatusBadRequest {
		t.Errorf("script upload = %d, want 400", w.Code)
	}

	w := uploadFile(t, router, "../escape.png", pngBytes)
	if w.Code == http.StatusCreated {
		// multipart may strip the directory; the file must still land inside assets.
		if _, err := os.Stat(filepath.Join(vaultDir, "escape.png")); err == nil {
			t.Error("file escaped assets directory")
		}
	}
}

func TestServeAsset_NotFoundAndTraversal(t *testing.T) {
	svcs, _ := testServices(t)
	r := siteRouter(svcs)

	if w := do(t, r, http.MethodGet, "/assets/nope.png", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", w.Code)
	}
	for _, name := range []string{"../secret.md", "../../etc/passwd", "..%2Fsecret.md"} {
		w := do(t, r, http.MethodGet, "/assets/"+name, nil)
		// chi may not route the traversal paths at all (404), or the store rejects (400).
		if w.Code == http.StatusOK {
			t.Errorf("traversal %q should not return 200", name)
		}
	}
}

func TestUploadAsset_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithVault(t, true, "secret")
	if w := uploadFile(t, router, "x.png", pngBytes); w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

func TestUploadAsset_MissingFileField(t *testing.T) {
	_, router, _ := testEnvWithVault(t, false, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}
