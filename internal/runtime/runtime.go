// Package runtime runs Risor transform scripts over scrape records before
// they are imported. A script for entity type T lives at
// transform/T.risor under the scripts directory or fs.FS.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/docket/scrape"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Runtime embeds a Risor VM and exposes scrape records and a few host
// functions to transform scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        *zap.Logger

	mu      sync.Mutex
	scripts map[string]*string // entity type -> source, nil when absent
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Risor import statements resolve through the same
// FS.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the script "log" global.
func WithLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime loading scripts from scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		log:        zap.NewNop(),
		scripts:    make(map[string]*string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("runtime")
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (object.Object, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly. Useful for testing
// without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// buildImporter returns a Risor importer for the Runtime's script source,
// or nil if neither an fs.FS nor a scripts directory is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file. Paths are relative to the fs.FS root or
// to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// TransformScriptPath returns the path of an entity type's transform script.
func TransformScriptPath(entityType string) string {
	return filepath.Join("transform", entityType+".risor")
}

// transformSource returns the cached transform script of entityType, or
// nil when there is none.
func (r *Runtime) transformSource(entityType string) (*string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.scripts[entityType]; ok {
		return src, nil
	}
	if r.fsys == nil && r.scriptsDir == "" {
		r.scripts[entityType] = nil
		return nil, nil
	}
	src, err := r.LoadScript(TransformScriptPath(entityType))
	if errors.Is(err, fs.ErrNotExist) {
		r.scripts[entityType] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.scripts[entityType] = &src
	return &src, nil
}

// HasTransform reports whether a transform script exists for entityType.
func (r *Runtime) HasTransform(entityType string) bool {
	src, err := r.transformSource(entityType)
	return err == nil && src != nil
}

// Transform runs the transform script of rec's type. The script sees the
// record as the map global "record" and evaluates to the record to import:
// a map replaces it, nil keeps the (possibly mutated) global, false drops
// it. keep is false for dropped records. Without a script rec is returned
// unchanged.
func (r *Runtime) Transform(ctx context.Context, rec scrape.Record) (out scrape.Record, keep bool, err error) {
	typ := rec.EntityType()
	src, err := r.transformSource(typ)
	if err != nil {
		return nil, false, err
	}
	if src == nil {
		return rec, true, nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("runtime: encode %s %s: %w", typ, rec.LocalID(), err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, fmt.Errorf("runtime: encode %s %s: %w", typ, rec.LocalID(), err)
	}
	global := object.FromGoType(fields)

	label := TransformScriptPath(typ)
	result, err := r.eval(ctx, *src, label, map[string]any{"record": global})
	if err != nil {
		return nil, false, err
	}

	var next any
	switch {
	case result == object.False:
		r.log.Debug("record dropped by transform", zap.String("type", typ), zap.String("local_id", rec.LocalID()))
		return nil, false, nil
	case result == nil || result == object.Nil || result == object.True:
		next = global.Interface()
	default:
		m, ok := result.(*object.Map)
		if !ok {
			return nil, false, fmt.Errorf("runtime: script %s: must evaluate to a map, got %s", label, result.Type())
		}
		next = m.Interface()
	}

	if data, err = json.Marshal(next); err != nil {
		return nil, false, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	out, err = scrape.Decode(typ, data)
	if err != nil {
		return nil, false, fmt.Errorf("runtime: script %s: decode result: %w", label, err)
	}
	return out, true, nil
}

// TransformBatch applies Transform to every record of b and returns the
// batch to import. Per-type record order is kept.
func (r *Runtime) TransformBatch(ctx context.Context, b *scrape.Batch) (*scrape.Batch, error) {
	out := &scrape.Batch{}
	dropped := 0
	for typ, recs := range b.Records() {
		if !r.HasTransform(typ) {
			for _, rec := range recs {
				if err := out.Add(rec); err != nil {
					return nil, err
				}
			}
			continue
		}
		for _, rec := range recs {
			next, keep, err := r.Transform(ctx, rec)
			if err != nil {
				return nil, err
			}
			if !keep {
				dropped++
				continue
			}
			if err := out.Add(next); err != nil {
				return nil, err
			}
		}
	}
	if dropped > 0 {
		r.log.Info("transform dropped records", zap.Int("count", dropped))
	}
	return out, nil
}

// buildGlobals constructs the globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"pseudo_id": makePseudoIDFn(),
		"log":       mustProxy(&logObject{log: r.log.With(zap.String("script", label))}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
