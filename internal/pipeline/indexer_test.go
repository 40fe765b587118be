package pipeline

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/pkg/extract"
	"drone-helpdesk-go/pkg/tasks"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeExtractor struct {
	texts map[string]string
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (extract.Result, error) {
	f.calls++
	text, ok := f.texts[filepath.Base(path)]
	if !ok {
		return extract.Result{}, errors.New("corrupt pdf")
	}
	return extract.Result{Text: text, PageCount: 2}, nil
}

type fakeIndex struct {
	chunks map[string]model.Chunk
	adds   int
	err    error
}

func (f *fakeIndex) AddChunks(_ context.Context, chunks []model.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.adds++
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeIndex) Count(context.Context) (int64, error) { return int64(len(f.chunks)), nil }

type fakeDocRepo struct {
	docs map[string]model.Document
}

func (f *fakeDocRepo) FindByFilename(name string) (*model.Document, error) {
	d, ok := f.docs[name]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return &d, nil
}

func (f *fakeDocRepo) Upsert(doc *model.Document) error {
	f.docs[doc.Filename] = *doc
	return nil
}

func (f *fakeDocRepo) List() ([]model.Document, error) {
	out := make([]model.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

type fixture struct {
	dir       string
	extractor *fakeExtractor
	index     *fakeIndex
	repo      *fakeDocRepo
	indexer   *Indexer
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4 fake"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	chunker, err := NewChunker(100, 20)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		dir:       dir,
		extractor: &fakeExtractor{texts: map[string]string{}},
		index:     &fakeIndex{chunks: map[string]model.Chunk{}},
		repo:      &fakeDocRepo{docs: map[string]model.Document{}},
	}
	for name, text := range files {
		if text != "" {
			f.extractor.texts[name] = text
		}
	}
	f.indexer = NewIndexer(f.extractor, chunker, f.index, f.repo, nil)
	return f
}

var longText = strings.Repeat("Keep a minimum distance from uninvolved people. ", 10)

func TestIngestDirectoryRecordsDocuments(t *testing.T) {
	f := newFixture(t, map[string]string{
		"rules_a2.pdf":   longText,
		"Guide_A1A3.PDF": "Open category rules.",
		"notes.txt":      "ignored",
	})

	summary, err := f.indexer.IngestDirectory(context.Background(), f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.FilesSeen != 2 || summary.Processed != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.IndexCount != int64(len(f.index.chunks)) || summary.ProcessedRows != 2 {
		t.Errorf("summary = %+v", summary)
	}

	doc := f.repo.docs["rules_a2.pdf"]
	if !doc.IsReady() || doc.DocumentType != model.DocumentTypeA2 || doc.PageCount != 2 || doc.FileSize == 0 {
		t.Errorf("document row = %+v", doc)
	}
	if doc.VectorCount != summary.TotalChunks-1 {
		t.Errorf("vector count = %d, total = %d", doc.VectorCount, summary.TotalChunks)
	}
	if _, ok := f.index.chunks["rules_a2_0"]; !ok {
		t.Error("chunk rules_a2_0 not indexed")
	}
	if f.repo.docs["Guide_A1A3.PDF"].DocumentType != model.DocumentTypeA1 {
		t.Errorf("combined guide type = %s", f.repo.docs["Guide_A1A3.PDF"].DocumentType)
	}
}

func TestIngestDirectoryIsIdempotent(t *testing.T) {
	f := newFixture(t, map[string]string{"rules_a2.pdf": longText})
	ctx := context.Background()

	first, _ := f.indexer.IngestDirectory(ctx, f.dir)
	countAfterFirst := len(f.index.chunks)
	second, _ := f.indexer.IngestDirectory(ctx, f.dir)

	if first.Processed != 1 || second.Skipped != 1 || second.Processed != 0 {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
	if f.index.adds != 1 || len(f.index.chunks) != countAfterFirst {
		t.Errorf("re-ingestion wrote to the index again: adds=%d", f.index.adds)
	}
	if f.extractor.calls != 1 {
		t.Errorf("extractor called %d times", f.extractor.calls)
	}
}

func TestIngestDirectorySkipsExtractionFailures(t *testing.T) {
	f := newFixture(t, map[string]string{
		"broken_a3.pdf": "",
		"rules_a2.pdf":  longText,
	})
	summary, err := f.indexer.IngestDirectory(context.Background(), f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 || summary.Processed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, ok := f.repo.docs["broken_a3.pdf"]; ok {
		t.Error("failed document should not be recorded")
	}
}

func TestIndexFailureLeavesDocumentReingestable(t *testing.T) {
	f := newFixture(t, map[string]string{"rules_a2.pdf": longText})
	ctx := context.Background()

	f.index.err = errors.New("index unavailable")
	res := f.indexer.IngestFile(ctx, filepath.Join(f.dir, "rules_a2.pdf"))
	if res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("result = %+v", res)
	}
	if doc, ok := f.repo.docs["rules_a2.pdf"]; ok && doc.Processed {
		t.Fatal("document marked processed after failed indexing")
	}

	f.index.err = nil
	res = f.indexer.IngestFile(ctx, filepath.Join(f.dir, "rules_a2.pdf"))
	if res.Outcome != OutcomeProcessed {
		t.Errorf("retry result = %+v", res)
	}
}

type fakeFetcher struct{ content string }

func (f *fakeFetcher) Download(_ context.Context, _ string, dest string) error {
	return os.WriteFile(dest, []byte(f.content), 0o644)
}

func TestProcessDownloadsObject(t *testing.T) {
	f := newFixture(t, map[string]string{"rules_a2.pdf": longText})
	f.indexer.fetcher = &fakeFetcher{content: "%PDF-1.4"}

	err := f.indexer.Process(context.Background(), tasks.IngestTask{
		TaskID:     "t1",
		FileName:   "rules_a2.pdf",
		ObjectName: "regulations/rules_a2.pdf",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	doc := f.repo.docs["rules_a2.pdf"]
	if !doc.Processed || doc.FilePath != "minio://regulations/rules_a2.pdf" {
		t.Errorf("document row = %+v", doc)
	}

	if err := f.indexer.Process(context.Background(), tasks.IngestTask{TaskID: "t2"}); err == nil {
		t.Error("expected an error for an empty task")
	}
}
