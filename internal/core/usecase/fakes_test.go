package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type repoFake struct {
	mu   sync.Mutex
	docs map[string]*domain.Document

	createErr  error
	getErr     error
	updateErr  error
	summaryErr error
	deleteErr  error

	statusWrites []domain.DocumentStatus
	deletedIDs   []string
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	f := &repoFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		copyDoc := *d
		f.docs[d.ID] = &copyDoc
	}
	return f
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, version int64) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	if doc.Version != version {
		return domain.WrapError(domain.ErrVersionConflict, "update status", errors.New(id))
	}
	doc.Status = status
	doc.Version++
	f.statusWrites = append(f.statusWrites, status)
	return nil
}

func (f *repoFake) SaveSummary(_ context.Context, id string, summary string, version int64) error {
	if f.summaryErr != nil {
		return f.summaryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save summary", errors.New(id))
	}
	if doc.Version != version {
		return domain.WrapError(domain.ErrVersionConflict, "save summary", errors.New(id))
	}
	doc.Summary = summary
	doc.Version++
	return nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type analyticsFake struct {
	records    map[string]domain.DocumentAnalytics
	deletedIDs []string
	upsertErr  error
}

func newAnalyticsFake() *analyticsFake {
	return &analyticsFake{records: map[string]domain.DocumentAnalytics{}}
}

func (f *analyticsFake) Upsert(_ context.Context, analytics *domain.DocumentAnalytics) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[analytics.DocumentID] = *analytics
	return nil
}

func (f *analyticsFake) GetByDocumentID(_ context.Context, documentID string) (*domain.DocumentAnalytics, error) {
	record, ok := f.records[documentID]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get analytics", errors.New(documentID))
	}
	return &record, nil
}

func (f *analyticsFake) Delete(_ context.Context, documentID string) error {
	delete(f.records, documentID)
	f.deletedIDs = append(f.deletedIDs, documentID)
	return nil
}

type searchFake struct {
	indexed    map[string]string
	deletedIDs []string
	indexErr   error
}

func newSearchFake() *searchFake {
	return &searchFake{indexed: map[string]string{}}
}

func (f *searchFake) Index(_ context.Context, documentID, _, text string, _ map[string]string) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed[documentID] = text
	return nil
}

func (f *searchFake) Delete(_ context.Context, documentID string) error {
	delete(f.indexed, documentID)
	f.deletedIDs = append(f.deletedIDs, documentID)
	return nil
}

type storageFake struct {
	saved      map[string]string
	content    string
	saveErr    error
	openErr    error
	deleteErr  error
	deletedIDs []string

	// openFailures fails that many Open calls before letting one through.
	openFailures int
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.openFailures > 0 {
		f.openFailures--
		return nil, errors.New("storage unavailable")
	}
	if body, ok := f.saved[key]; ok {
		return io.NopCloser(strings.NewReader(body)), nil
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.saved, key)
	f.deletedIDs = append(f.deletedIDs, key)
	return nil
}

type publisherFake struct {
	mu sync.Mutex

	created    []domain.DocumentCreated
	deleted    []domain.DocumentDeleted
	ocrResults []domain.OcrResult
	summaries  []domain.SummaryResult

	createdErr error
	deletedErr error
	ocrErr     error
	summaryErr error

	// summaryFailures fails that many PublishSummaryResult calls before
	// letting one through.
	summaryFailures int
}

func (f *publisherFake) PublishDocumentCreated(_ context.Context, event domain.DocumentCreated) error {
	if f.createdErr != nil {
		return f.createdErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, event)
	return nil
}

func (f *publisherFake) PublishDocumentDeleted(_ context.Context, event domain.DocumentDeleted) error {
	if f.deletedErr != nil {
		return f.deletedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, event)
	return nil
}

func (f *publisherFake) PublishOcrResult(_ context.Context, event domain.OcrResult) error {
	if f.ocrErr != nil {
		return f.ocrErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocrResults = append(f.ocrResults, event)
	return nil
}

func (f *publisherFake) PublishSummaryResult(_ context.Context, event domain.SummaryResult) error {
	if f.summaryErr != nil {
		return f.summaryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryFailures > 0 {
		f.summaryFailures--
		return errors.New("broker unavailable")
	}
	f.summaries = append(f.summaries, event)
	return nil
}

func (f *publisherFake) summaryResults() []domain.SummaryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SummaryResult, len(f.summaries))
	copy(out, f.summaries)
	return out
}

type guardFake struct {
	mu         sync.Mutex
	seen       map[string]bool
	claimErr   error
	releaseErr error
}

func newGuardFake() *guardFake {
	return &guardFake{seen: map[string]bool{}}
}

func (f *guardFake) TryClaim(_ context.Context, messageID string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[messageID] {
		return false, nil
	}
	f.seen[messageID] = true
	return true, nil
}

func (f *guardFake) Release(_ context.Context, messageID string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, messageID)
	return nil
}

func (f *guardFake) holds(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[messageID]
}

type extractorFake struct {
	pages       []domain.PageResult
	err         error
	unavailable bool
}

func (f *extractorFake) Extract(context.Context, string, io.Reader) ([]domain.PageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func (f *extractorFake) Available() bool {
	return !f.unavailable
}

type summarizerFake struct {
	mu           sync.Mutex
	summary      string
	err          error
	unconfigured bool
	calls        int
}

func (f *summarizerFake) Summarize(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func (f *summarizerFake) IsConfigured() bool {
	return !f.unconfigured
}

func (f *summarizerFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
