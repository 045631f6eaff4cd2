package services

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/openfiscal/budgetflow/internal/gcp"
	"github.com/openfiscal/budgetflow/internal/models"
)

// ErrDocumentNotFound is returned when no document record exists for an id.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the narrow surface the stages need from the relational
// store: single-record reads and field updates.
type DocumentStore interface {
	Get(ctx context.Context, docID string) (*models.Document, error)
	Update(ctx context.Context, docID string, updates []firestore.Update) error
	Create(ctx context.Context, docID string, doc *models.Document) error
}

// FirestoreStore backs DocumentStore with a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore wraps a Firestore client for the documents collection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) Get(ctx context.Context, docID string) (*models.Document, error) {
	snap, err := s.client.Collection(s.collection).Doc(docID).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", docID, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", docID, err)
	}
	return &doc, nil
}

func (s *FirestoreStore) Update(ctx context.Context, docID string, updates []firestore.Update) error {
	if _, err := s.client.Collection(s.collection).Doc(docID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update document %s: %w", docID, err)
	}
	return nil
}

func (s *FirestoreStore) Create(ctx context.Context, docID string, doc *models.Document) error {
	if _, err := s.client.Collection(s.collection).Doc(docID).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document %s: %w", docID, err)
	}
	return nil
}

// ObjectStore is the narrow surface the stages need from object storage.
type ObjectStore interface {
	Download(ctx context.Context, bucket, object, destPath string, attempts int) error
	Read(ctx context.Context, bucket, object string) (string, error)
	Save(ctx context.Context, bucket, object, content string) error
}

// GCSObjectStore backs ObjectStore with Cloud Storage.
type GCSObjectStore struct {
	client *storage.Client
}

// NewGCSObjectStore wraps a storage client.
func NewGCSObjectStore(client *storage.Client) *GCSObjectStore {
	return &GCSObjectStore{client: client}
}

func (s *GCSObjectStore) Download(ctx context.Context, bucket, object, destPath string, attempts int) error {
	return gcp.DownloadToFile(ctx, s.client, bucket, object, destPath, attempts)
}

func (s *GCSObjectStore) Read(ctx context.Context, bucket, object string) (string, error) {
	return gcp.ReadObject(ctx, s.client, bucket, object)
}

func (s *GCSObjectStore) Save(ctx context.Context, bucket, object, content string) error {
	return gcp.SaveToGCSAtomically(ctx, s.client.Bucket(bucket), object, content)
}
