package goemitter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/spec"
	"gopkg.in/yaml.v3"
)

// Options controls how the Go emitter renders a package.
type Options struct {
	OutDir      string // required; target directory of the generated package
	PackageName string // Go package name; defaults to "api"
	Force       bool   // overwrite existing files
	DryRun      bool   // don't write, only plan
	Verbose     bool
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files and the resolved package name.
type Result struct {
	PackageName string
	Operations  int
	Planned     []PlannedFile
}

// Emit renders a Go package with typed bindings for every contract in set:
// named types for identified schemas, accessor and payload types per
// operation, and a Routes wrapper whose methods only accept handlers of the
// right shape. The document is embedded so the package can rebuild its
// routing interface at startup.
func Emit(ctx context.Context, set *contract.Set, opts Options) (*Result, error) {
	if set == nil || set.Document == nil {
		return nil, fmt.Errorf("goemitter: nil contract set")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("goemitter: OutDir is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pkg := sanitizePackageName(opts.PackageName)
	if pkg == "" {
		pkg = "api"
	}

	files := map[string][]byte{}
	doc, err := yaml.Marshal(prune(set))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	files[documentFile] = doc

	src, err := renderPackage(pkg, set)
	if err != nil {
		return nil, fmt.Errorf("goemitter: render: %w", err)
	}
	files["api.go"] = src
	files["README.md"] = []byte(renderReadme(pkg, set))

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, filepath.ToSlash(p))
	}
	sort.Strings(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
	}
	return &Result{PackageName: pkg, Operations: len(set.Operations), Planned: planned}, nil
}

// prune keeps only the operations present in set, so the embedded document
// derives exactly the same contracts.
func prune(set *contract.Set) *spec.Document {
	src := set.Document
	out := &spec.Document{
		OpenAPI:    src.OpenAPI,
		Info:       src.Info,
		Servers:    src.Servers,
		Components: src.Components,
		Paths:      map[string]*spec.PathItem{},
	}
	for _, op := range set.Operations {
		item, ok := out.Paths[op.Path]
		if !ok {
			orig := src.Paths[op.Path]
			item = &spec.PathItem{Summary: orig.Summary, Parameters: orig.Parameters}
			out.Paths[op.Path] = item
		}
		item.SetOperation(op.Method, src.Paths[op.Path].Operation(op.Method))
	}
	return out
}

func renderReadme(pkg string, set *contract.Set) string {
	var b bytes.Buffer
	title := set.Document.Info.Title
	if title == "" {
		title = pkg
	}
	fmt.Fprintf(&b, "# %s\n\nGenerated by `oasrouter generate`. Do not edit.\n\n", title)
	b.WriteString("| Operation | Request body | Response |\n|---|---|---|\n")
	for _, op := range set.Operations {
		body := "-"
		if op.RequestBody != nil {
			body = "`" + op.RequestBody.String() + "`"
		}
		resp := "-"
		if op.ResponseBody != nil {
			resp = op.ResponseStatus + " `" + op.ResponseBody.String() + "`"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", op, strings.ReplaceAll(body, "|", "\\|"), strings.ReplaceAll(resp, "|", "\\|"))
	}
	return b.String()
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("goemitter: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

func sanitizePackageName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "0123456789")
	return out
}
