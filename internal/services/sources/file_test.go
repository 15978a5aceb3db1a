package sources

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sermo/internal/models"
)

func fileSource(path string) *models.Source {
	return &models.Source{
		ID:              "src_test",
		KnowledgeBaseID: "kb_test",
		Type:            models.SourceTypeFile,
		Name:            filepath.Base(path),
		Location:        path,
	}
}

func TestFileProvider_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("first line\n\nsecond paragraph"), 0644))

	provider := NewFileProvider(arbor.NewLogger())
	content, err := provider.GetContent(context.Background(), fileSource(path))

	require.NoError(t, err)
	assert.Equal(t, "first line\n\nsecond paragraph", content)
}

func TestFileProvider_MissingFile(t *testing.T) {
	provider := NewFileProvider(arbor.NewLogger())

	_, err := provider.GetContent(context.Background(), fileSource(filepath.Join(t.TempDir(), "absent.txt")))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestFileProvider_Docx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "letter.docx")
	writeDocx(t, path, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	provider := NewFileProvider(arbor.NewLogger())
	content, err := provider.GetContent(context.Background(), fileSource(path))

	require.NoError(t, err)
	assert.Contains(t, content, "First paragraph.")
	assert.Contains(t, content, "Second paragraph.")
}

func TestFileProvider_DocxWithoutDocumentPart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	provider := NewFileProvider(arbor.NewLogger())
	_, err = provider.GetContent(context.Background(), fileSource(path))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func writeDocx(t *testing.T, path, documentXML string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}
