package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/docket/scrape"
)

// scriptFS returns an fs.FS holding the given transform scripts keyed by
// entity type.
func scriptFS(scripts map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for typ, src := range scripts {
		fsys["transform/"+typ+".risor"] = &fstest.MapFile{Data: []byte(src)}
	}
	return fsys
}

// --- Script loading ---

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`1 + 1`), 0644))

	rt := NewRuntime(dir)
	got, err := rt.RunScript(context.Background(), "test.risor", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Interface())
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(t.TempDir())
	_, err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.risor")
	content := `x := 42`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rt := NewRuntime(dir)
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestTransformScriptPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("transform", "bill.risor"), TransformScriptPath("bill"))
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{"bill": content})))

	got, err := rt.LoadScript("transform/bill.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Absolute-style paths resolve within the FS.
	got, err = rt.LoadScript("/transform/bill.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFS_NotFound(t *testing.T) {
	t.Parallel()

	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{}))
	_, err := rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestImport_FSImporter(t *testing.T) {
	// Risor's FSImporter resolves "lib_helpers" by trying name + ".risor".
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func session_of(name) {
	return "session " + name
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	script := `
import lib_helpers

s := lib_helpers.session_of("1900")
assert(s == "session 1900", 'unexpected ' + s)
`
	_, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	mapFS := fstest.MapFS{
		"helper.risor": &fstest.MapFile{Data: []byte(`
func chamber_ref(chamber) {
	log.Info("resolving " + chamber)
	return pseudo_id({"chamber": chamber})
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	script := `
import helper
ref := helper.chamber_ref("upper")
assert(ref == '~{"chamber":"upper"}', 'unexpected ' + ref)
`
	_, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

// --- Host functions ---

func TestPseudoID(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	got, err := rt.RunSource(context.Background(), `pseudo_id({"name": "Adam Smith", "birth_date": "1723"})`, nil)
	require.NoError(t, err)
	assert.Equal(t, `~{"birth_date":"1723","name":"Adam Smith"}`, got.Interface())

	_, err = rt.RunSource(context.Background(), `pseudo_id("Adam Smith")`, nil)
	require.Error(t, err)
}

func TestLog(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	rt := NewRuntime("", WithLogger(zap.New(core)))

	_, err := rt.RunSource(context.Background(), `log.Warn("odd chamber")`, nil)
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "odd chamber", entries[0].Message)
	assert.Equal(t, "runtime", entries[0].LoggerName)
	assert.Equal(t, "<inline>", entries[0].ContextMap()["script"])
}

// --- Transform ---

func TestTransform_NoScriptReturnsRecord(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{}))
	p := scrape.NewPerson("Adam Smith")

	got, keep, err := rt.Transform(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Same(t, p, got)
	assert.False(t, rt.HasTransform(scrape.TypePerson))
}

func TestTransform_NoScriptSource(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	p := scrape.NewPerson("Adam Smith")
	got, keep, err := rt.Transform(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Same(t, p, got)
}

func TestTransform_ReturnsMap(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypeBill: `
record["title"] = record["title"] + " (amended)"
record["from_organization"] = pseudo_id({"classification": "upper"})
record
`,
	})))

	b := scrape.NewBill("HB 1", "1900", "Axe & Tack Tax Act")
	b.AddAction("Introduced", "1900-04-01", scrape.ActionChamber("lower"))

	got, keep, err := rt.Transform(context.Background(), b)
	require.NoError(t, err)
	require.True(t, keep)
	out, ok := got.(*scrape.Bill)
	require.True(t, ok)
	assert.Equal(t, b.ID, out.ID)
	assert.Equal(t, "Axe & Tack Tax Act (amended)", out.Title)
	assert.Equal(t, `~{"classification":"upper"}`, out.FromOrganization)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "lower", out.Actions[0].Chamber)
	assert.Equal(t, "Axe & Tack Tax Act", b.Title, "input record untouched")
}

func TestTransform_MutatesGlobal(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypePerson: `record["gender"] = "female"`,
	})))

	got, keep, err := rt.Transform(context.Background(), scrape.NewPerson("Jane Doe"))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "female", got.(*scrape.Person).Gender)
}

func TestTransform_Drop(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypePerson: `record["name"] != "Nobody"`,
	})))

	_, keep, err := rt.Transform(context.Background(), scrape.NewPerson("Nobody"))
	require.NoError(t, err)
	assert.False(t, keep)

	got, keep, err := rt.Transform(context.Background(), scrape.NewPerson("Adam Smith"))
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "Adam Smith", got.(*scrape.Person).Name)
}

func TestTransform_BadResult(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypePerson: `42`,
	})))
	_, _, err := rt.Transform(context.Background(), scrape.NewPerson("Adam Smith"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must evaluate to a map")
}

func TestTransform_ScriptError(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("", WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypePerson: `undefined_helper(record)`,
	})))
	_, _, err := rt.Transform(context.Background(), scrape.NewPerson("Adam Smith"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform/person.risor")
}

func TestTransform_FromDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "transform"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transform", "organization.risor"),
		[]byte(`record["chamber"] = "upper"`), 0o644))

	rt := NewRuntime(dir)
	got, keep, err := rt.Transform(context.Background(), scrape.NewOrganization("Senate", "upper"))
	require.NoError(t, err)
	require.True(t, keep)
	assert.Equal(t, "upper", got.(*scrape.Organization).Chamber)
}

func TestTransformBatch(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	rt := NewRuntime("", WithLogger(zap.New(core)), WithRuntimeFS(scriptFS(map[string]string{
		scrape.TypePerson: `record["name"] != "Nobody"`,
	})))

	in := &scrape.Batch{}
	require.NoError(t, in.Add(scrape.NewPerson("Adam Smith")))
	require.NoError(t, in.Add(scrape.NewPerson("Nobody")))
	require.NoError(t, in.Add(scrape.NewPerson("Jane Doe")))
	org := scrape.NewOrganization("House", "lower")
	require.NoError(t, in.Add(org))

	out, err := rt.TransformBatch(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.People, 2)
	assert.Equal(t, "Adam Smith", out.People[0].Name)
	assert.Equal(t, "Jane Doe", out.People[1].Name)
	require.Len(t, out.Organizations, 1)
	assert.Same(t, org, out.Organizations[0])
	assert.Len(t, logs.FilterMessage("transform dropped records").All(), 1)
}
