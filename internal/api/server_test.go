package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/config"
	"github.com/dgallion1/annoscope/internal/markup"
	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/scopestore"
)

const testKey = "test-key"

const redlineV1 = `<html><head><title>Supply Agreement</title></head><body>
<section data-section="1"><p>The <span data-comment="Who?">buyer</span> pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

const redlineV2 = `<html><head><title>Supply Agreement</title></head><body>
<section data-section="1"><p>The buyer pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

func newTestServer(t *testing.T) *Server {
	return newTestServerWithCache(t, pipeline.CacheConfig{})
}

func newTestServerWithCache(t *testing.T, cc pipeline.CacheConfig) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)
	registry := pipeline.NewRegistry(pipeline.RegistryConfig{TTL: time.Hour, Metrics: metrics, Cache: cc}, log)
	cfg := config.Config{AnnoscopeAPIKey: testKey, MaxUploadBytes: 1 << 20}
	return NewServer(Deps{
		Registry: registry,
		Scopes:   scopestore.NewMemoryStore(time.Hour),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, log, cfg)
}

func do(t *testing.T, srv http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv http.Handler, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	return do(t, srv, method, path, body, "application/json")
}

func upload(t *testing.T, srv http.Handler, id, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return do(t, srv, http.MethodPost, "/api/sessions/"+id+"/document", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createSession(t *testing.T, srv http.Handler) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[pipeline.SessionSnapshot](t, rec).ID
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong key", "Bearer nope"},
		{"not bearer", "Basic " + testKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	if rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/orchestration", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 before upload, got %d", rec.Code)
	}

	if rec := upload(t, srv, id, "redline.html", redlineV1); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/orchestration", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	orch := decode[pipeline.OrchestrationResult](t, rec)
	if orch.Title != "Supply Agreement" || orch.Counts.Comments != 1 || orch.Counts.Highlights != 1 {
		t.Errorf("unexpected orchestration %+v", orch.Counts)
	}

	snap := decode[pipeline.SessionSnapshot](t, do(t, srv, http.MethodGet, "/api/sessions/"+id, nil, ""))
	if snap.Status != pipeline.StatusReady {
		t.Errorf("expected status ready, got %s", snap.Status)
	}

	if rec := do(t, srv, http.MethodDelete, "/api/sessions/"+id, nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/sessions/"+id, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	if rec := upload(t, srv, id, "sheet.csv", "a,b"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestClassificationNotConfigured(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	upload(t, srv, id, "redline.html", redlineV1)
	if rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/classification", nil, ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}

func TestCoverage(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	upload(t, srv, id, "redline.html", redlineV1)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/coverage", map[string]any{"all": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	type coverage struct {
		Sections []struct {
			SectionNumber  string `json:"sectionNumber"`
			IsFullyCovered bool   `json:"isFullyCovered"`
		} `json:"sections"`
	}
	body := decode[coverage](t, rec)
	if len(body.Sections) != 2 || !body.Sections[0].IsFullyCovered || !body.Sections[1].IsFullyCovered {
		t.Errorf("expected both sections fully covered, got %+v", body.Sections)
	}
}

func TestRangesBundleAndRefresh(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	upload(t, srv, id, "redline.html", redlineV1)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/scope/ranges", map[string]any{
		"label":          "Payment",
		"sectionNumbers": []string{"1"},
		"mode":           "include-only",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/bundle", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	b := decode[pipeline.Bundle](t, rec)
	if b.Filtered.Counts.Comments != 1 || b.Filtered.Counts.WordLevelTrackChanges != 1 || b.Filtered.Counts.Highlights != 0 {
		t.Errorf("expected only section 1 annotations, got %+v", b.Filtered.Counts)
	}

	upload(t, srv, id, "redline.html", redlineV2)
	rec = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/refresh", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var refresh struct {
		Reconciliation struct {
			Summary struct {
				Removed struct {
					Comments []json.RawMessage `json:"comments"`
				} `json:"removed"`
			} `json:"summary"`
		} `json:"reconciliation"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &refresh); err != nil {
		t.Fatal(err)
	}
	if len(refresh.Reconciliation.Summary.Removed.Comments) != 1 || refresh.Message == "" {
		t.Errorf("expected one removed comment and a message, got %s", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/scope", nil, "")
	var sc struct {
		Ranges []struct {
			AnnotationCounts struct {
				Comments int `json:"comments"`
			} `json:"annotationCounts"`
		} `json:"ranges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sc); err != nil {
		t.Fatal(err)
	}
	if len(sc.Ranges) != 1 || sc.Ranges[0].AnnotationCounts.Comments != 0 {
		t.Errorf("expected the stored scope to be reconciled, got %s", rec.Body.String())
	}
}

// slowExtractor holds comment extraction open once armed.
type slowExtractor struct {
	markup.Extractor
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (x *slowExtractor) ExtractComments(ctx context.Context, data []byte) ([]annotation.Comment, error) {
	if x.armed.Load() {
		x.entered <- struct{}{}
		<-x.release
	}
	return x.Extractor.ExtractComments(ctx, data)
}

func TestRangeAddedDuringRefreshIsKept(t *testing.T) {
	x := &slowExtractor{entered: make(chan struct{}, 16), release: make(chan struct{})}
	srv := newTestServerWithCache(t, pipeline.CacheConfig{Extractor: x})
	id := createSession(t, srv)
	upload(t, srv, id, "redline.html", redlineV1)

	rec := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/scope/ranges", map[string]any{
		"label":          "Payment",
		"sectionNumbers": []string{"1"},
		"mode":           "include-only",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	upload(t, srv, id, "redline.html", redlineV2)
	x.armed.Store(true)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		codes[0] = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/refresh", nil, "").Code
	}()
	<-x.entered

	body := `{"label":"Term","sectionNumbers":["2"]}`
	wg.Add(1)
	go func() {
		defer wg.Done()
		codes[1] = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/scope/ranges", strings.NewReader(body), "application/json").Code
	}()
	time.Sleep(50 * time.Millisecond)
	close(x.release)
	wg.Wait()

	if codes[0] != http.StatusOK || codes[1] != http.StatusCreated {
		t.Fatalf("expected 200 and 201, got %v", codes)
	}
	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/scope", nil, "")
	var sc struct {
		Ranges []struct {
			Label string `json:"label"`
		} `json:"ranges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sc); err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, r := range sc.Ranges {
		labels = append(labels, r.Label)
	}
	if strings.Join(labels, ",") != "Payment,Term" {
		t.Errorf("expected ranges Payment,Term, got %v", labels)
	}
}

func TestBundleNothingFound(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	upload(t, srv, id, "plain.txt", "1. Scope\n\nGoods only.")

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/bundle", nil, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "NO_ANNOTATIONS_FOUND") {
		t.Errorf("expected NO_ANNOTATIONS_FOUND, got %s", rec.Body.String())
	}
}

func TestPutScopeValidates(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	rec := doJSON(t, srv, http.MethodPut, "/api/sessions/"+id+"/scope", map[string]any{"mode": "sometimes"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "annoscope_sessions") {
		t.Errorf("expected sessions gauge in metrics, got %d", rec.Code)
	}
}
