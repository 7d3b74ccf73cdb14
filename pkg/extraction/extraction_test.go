package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragwell/corpus/pkg/apperror"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFExtractor())
	r.Register(NewDocxExtractor())
	r.Register(NewLegacyDocExtractor())
	r.Register(NewPlainTextExtractor())
	return r
}

func TestExtractPlainText(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Extract(context.Background(), []byte("hello world, this is a test"), FileTypeTxt, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world, this is a test", result.Text)
	assert.Equal(t, 6, result.WordCount)
	assert.Equal(t, 1, result.PageCount)
}

func TestExtractHTMLStripsTags(t *testing.T) {
	r := newTestRegistry()
	html := `<html><body><h1>Title</h1><p>Some &amp; text</p></body></html>`
	result, err := r.Extract(context.Background(), []byte(html), FileTypeHTML, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Title Some & text", result.Text)
}

func TestExtractUnsupportedFileType(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Extract(context.Background(), []byte("data"), FileType("exe"), Options{})
	require.Error(t, err)
	assert.Equal(t, apperror.UnsupportedFileType, apperror.KindOf(err))
}

func TestExtractIsDeterministic(t *testing.T) {
	r := newTestRegistry()
	data := []byte("repeatable content\nacross lines")

	first, err := r.Extract(context.Background(), data, FileTypeMD, Options{})
	require.NoError(t, err)
	second, err := r.Extract(context.Background(), data, FileTypeMD, Options{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLegacyDocExtractorKeepsOnlyLongPrintableRuns(t *testing.T) {
	e := NewLegacyDocExtractor()
	data := append([]byte{0x00, 0x01, 0x02}, []byte("recoverable text here")...)
	data = append(data, 0xff, 0xfe, 'x', 'y')

	result, err := e.Extract(context.Background(), data, FileTypeDoc, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "recoverable text here")
	assert.NotContains(t, result.Text, "xy")
}

func TestCleanUTF8RejectsMostlyInvalidContent(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 0xff, 0xfe, 0xff, 0xfe})
	assert.Equal(t, "", cleanUTF8(invalid))

	valid := "hello"
	assert.Equal(t, valid, cleanUTF8(valid))
}

func TestRegistryPrefersHigherPriorityExtractor(t *testing.T) {
	r := NewRegistry()
	r.Register(NewPlainTextExtractor())
	r.Register(NewPDFExtractor())

	assert.Equal(t, "pdf", r.extractors[0].Name())
}
