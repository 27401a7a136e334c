package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/scope"
)

const redlineV1 = `<html><head><title>Supply Agreement</title></head><body>
<section data-section="1"><p>The <span data-comment="Who?">buyer</span> pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

const redlineV2 = `<html><head><title>Supply Agreement</title></head><body>
<section data-section="1"><p>The buyer pays. Fees are <del>sixty</del><ins>thirty</ins> days.</p></section>
<section data-section="2"><p><mark>Term</mark> is one year.</p></section>
</body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParse(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "parse", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view parseView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Title != "Supply Agreement" || len(view.Sections) != 2 {
		t.Errorf("unexpected view %+v", view)
	}
	want := annotation.Counts{Comments: 1, Highlights: 1, WordLevelTrackChanges: 1}
	if view.Counts != want {
		t.Errorf("expected %+v, got %+v", want, view.Counts)
	}
	if view.Annotations != nil {
		t.Error("expected annotations to be omitted by default")
	}
}

func TestParse_YAML(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "parse", path, "-o", "yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "title: Supply Agreement") || !strings.Contains(out, "sectionNumber:") {
		t.Errorf("expected block yaml with json field names, got:\n%s", out)
	}
}

func TestParse_OutputFromEnv(t *testing.T) {
	t.Setenv("SCOPECTL_OUTPUT", "yaml")
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "parse", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected yaml output from SCOPECTL_OUTPUT, got:\n%s", out)
	}
}

func TestParse_HostAnnotations(t *testing.T) {
	doc := writeFile(t, "plain.txt", "1. Scope\n\nGoods only.")
	records := writeFile(t, "records.json", `{"highlights":[{"id":"h1","sectionNumber":"1","selectedText":"Scope","startOffset":3,"endOffset":8}]}`)
	out, err := run(t, "parse", doc, "--annotations", records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view parseView
	json.Unmarshal([]byte(out), &view)
	if view.Counts.Highlights != 1 {
		t.Errorf("expected the host highlight, got %+v", view.Counts)
	}
}

func TestMap(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "map", path, "--start", "0", "--end", "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var cov []scope.SectionCoverage
	if err := json.Unmarshal([]byte(out), &cov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cov) != 1 || cov[0].SectionNumber != "1" || cov[0].SelectedText != "The" {
		t.Errorf("unexpected coverage %+v", cov)
	}
}

func TestMatch_Sections(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "match", path, "--sections", "2", "--label", "Term")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var r scope.SelectionRange
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Label != "Term" || r.AnnotationCounts.Highlights != 1 || r.AnnotationCounts.Total() != 1 {
		t.Errorf("unexpected range %+v", r)
	}
}

func TestFilter_Types(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	out, err := run(t, "filter", path, "--types", "highlights")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var f scope.FilteredAnnotations
	if err := json.Unmarshal([]byte(out), &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Counts.Total() != 1 || f.Counts.Highlights != 1 {
		t.Errorf("expected only the highlight, got %+v", f.Counts)
	}
}

func TestFilter_NothingFound(t *testing.T) {
	path := writeFile(t, "plain.txt", "1. Scope\n\nGoods only.")
	_, err := run(t, "filter", path)
	if err == nil || !strings.Contains(err.Error(), scope.NoAnnotationsFound) {
		t.Errorf("expected %s, got %v", scope.NoAnnotationsFound, err)
	}
}

func TestReconcile(t *testing.T) {
	oldPath := writeFile(t, "v1.html", redlineV1)
	newPath := writeFile(t, "v2.html", redlineV2)
	out, err := run(t, "reconcile", oldPath, newPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		ReconciledScope scope.AnnotationScope `json:"reconciledScope"`
		Summary         struct {
			Preserved annotation.Counts `json:"preserved"`
			Removed   annotation.Set    `json:"removed"`
		} `json:"summary"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Summary.Removed.Comments) != 1 || res.Summary.Preserved.Total() != 2 {
		t.Errorf("expected 1 removed comment and 2 preserved, got %+v", res.Summary)
	}
	if len(res.ReconciledScope.Ranges) != 1 || res.Message == "" {
		t.Errorf("unexpected result %s", out)
	}
}

func TestReconcile_ScopeFile(t *testing.T) {
	oldPath := writeFile(t, "v1.html", redlineV1)
	newPath := writeFile(t, "v2.html", redlineV2)
	emptyScope := writeFile(t, "scope.json", `{"mode":"all","ranges":[],"types":{"comments":true}}`)
	if _, err := run(t, "reconcile", oldPath, newPath, "--scope", emptyScope); err == nil {
		t.Error("expected a scope without ranges to be rejected")
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	path := writeFile(t, "redline.html", redlineV1)
	if _, err := run(t, "parse", path, "-o", "xml"); err == nil {
		t.Error("expected unknown output format to fail")
	}
}
