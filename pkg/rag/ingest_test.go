package rag

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"mastewalai/pkg/domain"
	"mastewalai/pkg/extract"
	"mastewalai/pkg/storage"
	"mastewalai/pkg/store"
)

func makeDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>`)
		_ = xmlEscape(&body, p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := f.Write(body.Bytes()); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func xmlEscape(buf *bytes.Buffer, s string) error {
	for _, r := range s {
		switch r {
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '&':
			buf.WriteString("&amp;")
		default:
			buf.WriteRune(r)
		}
	}
	return nil
}

func newTestIngestor(t *testing.T) (*Ingestor, *store.MemoryStore, *storage.LocalStore) {
	t.Helper()
	st := store.NewMemoryStore()
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return NewIngestor(st, files, &fakeEmbedder{}), st, files
}

func TestIngestUploadIndexesDocument(t *testing.T) {
	in, st, files := newTestIngestor(t)
	data := makeDocx(t, "The price of Book X is 500 ETB.", "Delivery takes two days in Addis Ababa.")

	doc, chunks, err := in.IngestUpload(context.Background(), "catalog.docx", extract.MediaTypeDOCX, data)
	if err != nil {
		t.Fatalf("IngestUpload() error = %v", err)
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("document status = %q, want ready", doc.Status)
	}
	if chunks < 1 {
		t.Fatalf("chunk count = %d, want at least 1", chunks)
	}

	got, err := st.SearchChunksByPattern(context.Background(), "500", 10)
	if err != nil {
		t.Fatalf("SearchChunksByPattern() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("indexed chunk not searchable")
	}
	if got[0].Metadata["filename"] != "catalog.docx" {
		t.Fatalf("chunk filename metadata = %q", got[0].Metadata["filename"])
	}
	if got[0].Metadata["chunk_index"] == "" {
		t.Fatal("chunk index metadata missing")
	}
	if len(got[0].Embedding) == 0 {
		t.Fatal("chunk embedding missing")
	}

	if _, err := files.Get(context.Background(), doc.StorageKey); err != nil {
		t.Fatalf("original file not retained: %v", err)
	}
}

func TestIngestUploadRejectsUnsupportedType(t *testing.T) {
	in, st, _ := newTestIngestor(t)

	doc, _, err := in.IngestUpload(context.Background(), "notes.txt", "text/plain", []byte("hello"))
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Fatalf("IngestUpload() error = %v, want ErrUnsupportedFormat", err)
	}
	stored, ok, _ := st.GetDocument(doc.ID)
	if !ok {
		t.Fatal("document record should survive a failed run")
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("document status = %q, want failed", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("failed document should carry an error message")
	}
}

func TestIngestUploadEmptyDocument(t *testing.T) {
	in, st, _ := newTestIngestor(t)
	data := makeDocx(t) // no paragraphs at all

	doc, _, err := in.IngestUpload(context.Background(), "empty.docx", extract.MediaTypeDOCX, data)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("IngestUpload() error = %v, want ErrEmptyDocument", err)
	}
	stored, _, _ := st.GetDocument(doc.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("document status = %q, want failed", stored.Status)
	}
}

func TestIngestUploadEmbedderFailure(t *testing.T) {
	st := store.NewMemoryStore()
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	in := NewIngestor(st, files, &fakeEmbedder{fail: true})
	data := makeDocx(t, "Some content that never gets embedded.")

	doc, _, err := in.IngestUpload(context.Background(), "a.docx", extract.MediaTypeDOCX, data)
	if err == nil {
		t.Fatal("IngestUpload() expected error from embedder")
	}
	stored, _, _ := st.GetDocument(doc.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("document status = %q, want failed", stored.Status)
	}
}

// flakyChunkStore fails InsertChunk once failAfter inserts have succeeded.
type flakyChunkStore struct {
	*store.MemoryStore
	failAfter int
	inserts   int
}

func (s *flakyChunkStore) InsertChunk(chunk domain.Chunk) (string, error) {
	s.inserts++
	if s.inserts > s.failAfter {
		return "", errors.New("connection reset")
	}
	return s.MemoryStore.InsertChunk(chunk)
}

func TestIngestUploadChunkStoreFailureRetainsPartialChunks(t *testing.T) {
	flaky := &flakyChunkStore{MemoryStore: store.NewMemoryStore(), failAfter: 1}
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	in := NewIngestor(flaky, files, &fakeEmbedder{})

	// Long enough to split into several chunks so the store fails mid-run.
	para := strings.Repeat("The price of Book X is 500 ETB. ", 20)
	data := makeDocx(t, para, para, para)

	doc, _, err := in.IngestUpload(context.Background(), "catalog.docx", extract.MediaTypeDOCX, data)
	if err == nil {
		t.Fatal("IngestUpload() expected error from chunk store")
	}
	stored, _, _ := flaky.GetDocument(doc.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("document status = %q, want failed", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("failed document should carry an error message")
	}

	// Chunks written before the failure stay queryable.
	got, err := flaky.SearchChunksByPattern(context.Background(), "500", 100)
	if err != nil {
		t.Fatalf("SearchChunksByPattern() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("retained chunks = %d, want 1", len(got))
	}
	if got[0].Metadata["chunk_index"] != "0" {
		t.Fatalf("retained chunk index = %q, want 0", got[0].Metadata["chunk_index"])
	}

	// A healthy reindex drops the partial set and rebuilds everything.
	flaky.failAfter = 1 << 30
	count, err := in.Reindex(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if count < 2 {
		t.Fatalf("reindex chunk count = %d, want at least 2", count)
	}
	got, _ = flaky.SearchChunksByPattern(context.Background(), "500", 100)
	if len(got) != count {
		t.Fatalf("chunk count after reindex = %d, want %d", len(got), count)
	}
	stored, _, _ = flaky.GetDocument(doc.ID)
	if stored.Status != domain.StatusReady {
		t.Fatalf("document status = %q, want ready", stored.Status)
	}
}

func TestReindexReplacesChunks(t *testing.T) {
	in, st, _ := newTestIngestor(t)
	data := makeDocx(t, "The price of Book X is 500 ETB.")

	doc, first, err := in.IngestUpload(context.Background(), "catalog.docx", extract.MediaTypeDOCX, data)
	if err != nil {
		t.Fatalf("IngestUpload() error = %v", err)
	}

	second, err := in.Reindex(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if second != first {
		t.Fatalf("reindex chunk count = %d, want %d", second, first)
	}
	got, _ := st.SearchChunksByPattern(context.Background(), "500", 100)
	if len(got) != first {
		t.Fatalf("chunk count after reindex = %d, want %d", len(got), first)
	}
	stored, _, _ := st.GetDocument(doc.ID)
	if stored.Status != domain.StatusReady {
		t.Fatalf("document status = %q, want ready", stored.Status)
	}
}

func TestReindexUnknownDocument(t *testing.T) {
	in, _, _ := newTestIngestor(t)
	if _, err := in.Reindex(context.Background(), "missing"); err == nil {
		t.Fatal("Reindex() expected error for unknown document")
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	in, st, files := newTestIngestor(t)
	data := makeDocx(t, "The price of Book X is 500 ETB.")

	doc, _, err := in.IngestUpload(context.Background(), "catalog.docx", extract.MediaTypeDOCX, data)
	if err != nil {
		t.Fatalf("IngestUpload() error = %v", err)
	}
	if err := in.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := st.GetDocument(doc.ID); ok {
		t.Fatal("document should be deleted")
	}
	got, _ := st.SearchChunksByPattern(context.Background(), "500", 10)
	if len(got) != 0 {
		t.Fatal("chunks should be deleted with the document")
	}
	if _, err := files.Get(context.Background(), doc.StorageKey); err == nil {
		t.Fatal("retained file should be deleted")
	}
}
