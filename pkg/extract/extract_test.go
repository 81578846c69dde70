package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFacade_File_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "Hello world.")

	result, err := New().File(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello world."}, result.Content)
	assert.Nil(t, result.Images)
	assert.Equal(t, "a.txt", result.Metadata.FileName)
	assert.Equal(t, "txt", result.Metadata.FileType)
	assert.Equal(t, 1, result.Metadata.TotalPages)
}

func TestFacade_File_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.markdown", "# heading\nbody")

	result, err := New().File(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, "md", result.Metadata.FileType)
}

func TestFacade_File_TypedErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.xyz", "data")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing file", filepath.Join(dir, "nope.txt"), domain.ErrFileNotFound},
		{"directory", dir, domain.ErrNotAFile},
		{"unsupported extension", filepath.Join(dir, "b.xyz"), domain.ErrUnsupportedFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().File(context.Background(), tt.path, false)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFacade_File_WrapsParserFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", "this is not a pdf")

	_, err := New().File(context.Background(), path, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "broken.pdf")
}

func TestFacade_Supported(t *testing.T) {
	f := New()
	assert.True(t, f.Supported("x.PDF"))
	assert.True(t, f.Supported("x.txt"))
	assert.False(t, f.Supported("x.docx"))
}

func TestFacade_Folder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.txt", "first document")
	writeFile(t, dir, "two.md", "second document")
	writeFile(t, dir, "bad.pdf", "not a real pdf")
	writeFile(t, dir, "skip.xyz", "ignored entirely")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	out, err := New().Folder(context.Background(), dir, false, 2)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, []string{"first document"}, out.Results[filepath.Join(dir, "one.txt")].Content)
	assert.Equal(t, []string{"second document"}, out.Results[filepath.Join(dir, "two.md")].Content)

	require.Len(t, out.Failures, 1)
	assert.ErrorIs(t, out.Failures[filepath.Join(dir, "bad.pdf")], domain.ErrExtractionFailed)
}

func TestFacade_Folder_MissingDir(t *testing.T) {
	_, err := New().Folder(context.Background(), "/definitely/not/here", false, 1)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}
