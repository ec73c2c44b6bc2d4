package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"helpdesk-bot/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// ElasticArchive indexes every submitted form as its own document, so
// repeated submissions by one applicant are all kept.
type ElasticArchive struct {
	client *elasticsearch.Client
	index  string
	newID  func() string
}

func NewElasticArchive(client *elasticsearch.Client, index string) *ElasticArchive {
	return &ElasticArchive{
		client: client,
		index:  index,
		newID:  func() string { return uuid.New().String() },
	}
}

func (a *ElasticArchive) Archive(ctx context.Context, form *models.SubmittedForm) error {
	body, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithDocumentID(a.newID()),
		a.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index form %d: %w", form.RequestID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index form %d: %s", form.RequestID, res.Status())
	}
	return nil
}
