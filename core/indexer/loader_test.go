package indexer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func guidelineTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "cardiology/acs.txt", "Acute coronary syndrome: give aspirin 300 mg and obtain an ECG.")
	writeFile(t, root, "cardiology/heart_failure/hf.txt", "Heart failure: start loop diuretics for congestion.")
	writeFile(t, root, "general/HYGIENE.TXT", "Hand hygiene before every patient contact.")
	writeFile(t, root, "sepsis.txt", "Sepsis bundle:\r\n antibiotics   within one hour.")
	writeFile(t, root, "notes.md", "# not a guideline")
	writeFile(t, root, "empty.txt", "   \n\t ")
	return root
}

func TestLoadDir(t *testing.T) {
	ctx := context.Background()
	root := guidelineTree(t)

	loader, err := NewGuidelineLoader(ctx)
	require.NoError(t, err)

	docs, report, err := loader.LoadDir(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Files)
	assert.Equal(t, 4, report.Documents)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Failed)
	require.Len(t, docs, 4)

	byPath := map[string]map[string]any{}
	for _, doc := range docs {
		byPath[doc.ID] = doc.MetaData
		assert.NotContains(t, doc.MetaData, common.MetaPage)
	}

	acs := byPath["cardiology/acs.txt"]
	require.NotNil(t, acs)
	assert.Equal(t, "acs.txt", acs[common.MetaSourceFile])
	assert.Equal(t, "cardiology", acs[common.MetaSpecialty])
	assert.Equal(t, "cardiology/acs.txt", acs[common.MetaFilePath])
	assert.Equal(t, ".txt", acs[common.MetaExtension])

	assert.Equal(t, "cardiology", byPath["cardiology/heart_failure/hf.txt"][common.MetaSpecialty])
	assert.Equal(t, "general", byPath["general/HYGIENE.TXT"][common.MetaSpecialty])
	assert.Equal(t, "general", byPath["sepsis.txt"][common.MetaSpecialty])

	for _, doc := range docs {
		if doc.ID == "sepsis.txt" {
			assert.Equal(t, "Sepsis bundle:\n antibiotics within one hour.", doc.Content)
		}
	}
}

func TestLoadDirCreatesMissingRoot(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "data", "guidelines")

	loader, err := NewGuidelineLoader(ctx)
	require.NoError(t, err)

	docs, report, err := loader.LoadDir(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, report.Files)

	st, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestListGuidelineFiles(t *testing.T) {
	root := guidelineTree(t)

	files, err := ListGuidelineFiles(root)
	require.NoError(t, err)

	rels := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)
	assert.Equal(t, []string{
		"cardiology/acs.txt",
		"cardiology/heart_failure/hf.txt",
		"empty.txt",
		"general/HYGIENE.TXT",
		"sepsis.txt",
	}, rels)
}

func TestLoadChunks(t *testing.T) {
	ctx := context.Background()
	root := guidelineTree(t)

	chunks, err := LoadChunks(ctx, config.GuidelinesConfig{Dir: root, ChunkSize: 40, ChunkOverlap: 10})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	sources := map[string]bool{}
	for _, c := range chunks {
		sources[c.MetaData[common.MetaSourceFile].(string)] = true
		assert.NotEmpty(t, c.ID)
		assert.Contains(t, c.MetaData, common.MetaChunkIndex)
	}
	assert.Equal(t, map[string]bool{"acs.txt": true, "hf.txt": true, "HYGIENE.TXT": true, "sepsis.txt": true}, sources)
}

func TestLoadDirIsolatesBrokenFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "cardiology/broken.pdf", "this is not a pdf document")
	writeFile(t, root, "cardiology/ok.txt", "Give aspirin for suspected acute coronary syndrome.")

	loader, err := NewGuidelineLoader(ctx)
	require.NoError(t, err)

	docs, report, err := loader.LoadDir(ctx, root)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "cardiology/ok.txt", docs[0].ID)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Documents)
	require.Len(t, report.Failed, 1)
	assert.True(t, strings.HasSuffix(filepath.ToSlash(report.Failed[0].Path), "cardiology/broken.pdf"))
	assert.True(t, errors.HasCode(report.Failed[0].Err, errors.ErrDocumentParseFailed))
	assert.Contains(t, report.Failed[0].Error(), "broken.pdf")
}

// panickingParser 模拟解析器内部崩溃
type panickingParser struct{}

func (panickingParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) ([]*schema.Document, error) {
	opt := parser.GetCommonOptions(&parser.Options{}, opts...)
	if strings.HasSuffix(opt.URI, "crash.txt") {
		panic("malformed stream")
	}
	return parser.TextParser{}.Parse(ctx, reader, opts...)
}

func TestLoadDirRecoversParserPanic(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "crash.txt", "anything")
	writeFile(t, root, "neurology/stroke.txt", "Urgent CT brain for suspected stroke.")

	fldr, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{Parser: panickingParser{}})
	require.NoError(t, err)
	loader := &GuidelineLoader{fileLoader: fldr}

	docs, report, err := loader.LoadDir(ctx, root)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "neurology", docs[0].MetaData[common.MetaSpecialty])
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Err.Error(), "malformed stream")
}
