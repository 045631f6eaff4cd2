package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/openfiscal/budgetflow/internal/models"
)

// fakeStore is an in-memory DocumentStore that applies the update paths the
// stages write, so re-reads observe status transitions.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	updates map[string][]firestore.Update
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:    map[string]*models.Document{},
		updates: map[string][]firestore.Update{},
	}
}

func (s *fakeStore) Get(ctx context.Context, docID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) Update(ctx context.Context, docID string, updates []firestore.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return fmt.Errorf("update of missing document %s", docID)
	}
	s.updates[docID] = append(s.updates[docID], updates...)
	for _, u := range updates {
		switch u.Path {
		case "extractionStatus":
			doc.ExtractionStatus = u.Value.(string)
		case "summarizationStatus":
			doc.SummarizationStatus = u.Value.(string)
		case "translationStatus":
			doc.TranslationStatus = u.Value.(string)
		case "publishStatus":
			doc.PublishStatus = u.Value.(string)
		case "extractedTextObject":
			doc.ExtractedTextObject = u.Value.(string)
		case "charCount":
			doc.CharCount = u.Value.(int)
		case "summaryText":
			doc.SummaryText = u.Value.(string)
		case "translatedSummary":
			doc.TranslatedSummary = u.Value.(string)
		}
	}
	return nil
}

func (s *fakeStore) Create(ctx context.Context, docID string, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[docID]; exists {
		return fmt.Errorf("document %s already exists", docID)
	}
	copied := *doc
	s.docs[docID] = &copied
	return nil
}

// updated reports the last value written for path on docID.
func (s *fakeStore) updated(docID, path string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value interface{}
	found := false
	for _, u := range s.updates[docID] {
		if u.Path == path {
			value = u.Value
			found = true
		}
	}
	return value, found
}

// fakeObjects is an in-memory ObjectStore keyed by bucket/object.
type fakeObjects struct {
	mu      sync.Mutex
	content map[string]string
	dlErr   error
	saveErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{content: map[string]string{}}
}

func objectKey(bucket, object string) string { return bucket + "/" + object }

func (o *fakeObjects) Download(ctx context.Context, bucket, object, destPath string, attempts int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dlErr != nil {
		return o.dlErr
	}
	if _, ok := o.content[objectKey(bucket, object)]; !ok {
		return fmt.Errorf("storage: object doesn't exist: %s/%s", bucket, object)
	}
	return nil
}

func (o *fakeObjects) Read(ctx context.Context, bucket, object string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	text, ok := o.content[objectKey(bucket, object)]
	if !ok {
		return "", fmt.Errorf("storage: object doesn't exist: %s/%s", bucket, object)
	}
	return text, nil
}

func (o *fakeObjects) Save(ctx context.Context, bucket, object, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.saveErr != nil {
		return o.saveErr
	}
	o.content[objectKey(bucket, object)] = content
	return nil
}

// fakeEmitter records pipeline triggers.
type fakeEmitter struct {
	mu       sync.Mutex
	triggers []models.PipelineTrigger
	err      error
}

func (e *fakeEmitter) TriggerPipeline(ctx context.Context, trigger models.PipelineTrigger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.triggers = append(e.triggers, trigger)
	return nil
}

func (e *fakeEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.triggers)
}

var testTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testTime }
