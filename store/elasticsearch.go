package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// defaultPageSize stays under index.max_result_window; List pages past it
// with search_after.
const defaultPageSize = 1000

var esMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":          map[string]string{"type": "keyword"},
			"type":        map[string]string{"type": "keyword"},
			"description": map[string]string{"type": "text"},
			"amount":      map[string]string{"type": "double"},
			"category":    map[string]string{"type": "keyword"},
			"date":        map[string]string{"type": "date"},
			"createdAt":   map[string]string{"type": "date"},
			"updatedAt":   map[string]string{"type": "date"},
		},
	},
}

// Elasticsearch stores each transaction as a document in one index.
type Elasticsearch struct {
	es       *elasticsearch.Client
	index    string
	pageSize int
}

func NewElasticsearch(ctx context.Context, address string, opts Options) (*Elasticsearch, error) {
	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},

		// Retry on 429 TooManyRequests statuses
		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},

		MaxRetries: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	index := opts.Collection
	if index == "" {
		index = defaultCollection
	}
	s := &Elasticsearch{es: es, index: index, pageSize: defaultPageSize}

	res, err := es.Indices.Create(
		index,
		es.Indices.Create.WithContext(ctx),
		es.Indices.Create.WithBody(esutil.NewJSONReader(esMapping)),
	)
	if err != nil {
		log.Warn().Err(err).Str("index", index).Msg("Attempted to create index")
		return s, nil
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Debug().Str("index", index).Str("response", res.String()).Msg("Index not created")
	}
	return s, nil
}

type esGetResponse struct {
	Found       bool               `json:"found"`
	SeqNo       int                `json:"_seq_no"`
	PrimaryTerm int                `json:"_primary_term"`
	Source      models.Transaction `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string             `json:"_id"`
			Source models.Transaction `json:"_source"`
			Sort   []interface{}      `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// List walks the whole index in createdAt order, one page at a time.
func (e *Elasticsearch) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	terms := []interface{}{}
	if filter.Type != "" {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"type": filter.Type}})
	}
	if filter.Category != "" {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{"category": filter.Category}})
	}

	result := []models.Transaction{}
	var after []interface{}
	for {
		query := map[string]interface{}{
			"query": map[string]interface{}{
				"bool": map[string]interface{}{"filter": terms},
			},
			"sort": []interface{}{
				map[string]interface{}{"createdAt": map[string]string{"order": "asc"}},
				map[string]interface{}{"id": map[string]string{"order": "asc"}},
			},
		}
		if after != nil {
			query["search_after"] = after
		}

		hits, err := e.search(ctx, query)
		if err != nil {
			return nil, err
		}
		if hits == nil {
			return result, nil
		}
		for _, hit := range hits.Hits.Hits {
			t := hit.Source
			t.ID = hit.ID
			result = append(result, t)
			after = hit.Sort
		}
		if len(hits.Hits.Hits) < e.pageSize || after == nil {
			return result, nil
		}
	}
}

// search runs one page of query. A missing index yields nil.
func (e *Elasticsearch) search(ctx context.Context, query map[string]interface{}) (*esSearchResponse, error) {
	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(e.index),
		e.es.Search.WithBody(esutil.NewJSONReader(query)),
		e.es.Search.WithSize(e.pageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("search transactions", res)
	}

	var body esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &body, nil
}

func (e *Elasticsearch) Get(ctx context.Context, id string) (*models.Transaction, error) {
	body, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	t := body.Source
	t.ID = id
	return &t, nil
}

func (e *Elasticsearch) get(ctx context.Context, id string) (*esGetResponse, error) {
	res, err := e.es.Get(e.index, id, e.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if res.IsError() {
		return nil, responseError("get transaction "+id, res)
	}

	var body esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	if !body.Found {
		return nil, models.ErrNotFound
	}
	return &body, nil
}

func (e *Elasticsearch) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	created := *t
	created.ID = uuid.NewString()

	res, err := e.es.Create(
		e.index,
		created.ID,
		esutil.NewJSONReader(created),
		e.es.Create.WithContext(ctx),
		e.es.Create.WithRefresh("true"),
	)
	if err != nil {
		return nil, fmt.Errorf("index transaction: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("index transaction", res)
	}
	return &created, nil
}

// Update re-indexes the whole document. The write is conditional on the
// sequence number read first, so a document deleted in between is not
// recreated.
func (e *Elasticsearch) Update(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	current, err := e.get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	updated := *t

	res, err := e.es.Index(
		e.index,
		esutil.NewJSONReader(updated),
		e.es.Index.WithDocumentID(t.ID),
		e.es.Index.WithIfSeqNo(current.SeqNo),
		e.es.Index.WithIfPrimaryTerm(current.PrimaryTerm),
		e.es.Index.WithContext(ctx),
		e.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return nil, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if res.IsError() {
		return nil, responseError("update transaction "+t.ID, res)
	}
	return &updated, nil
}

func (e *Elasticsearch) Delete(ctx context.Context, id string) error {
	res, err := e.es.Delete(
		e.index,
		id,
		e.es.Delete.WithContext(ctx),
		e.es.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	if res.IsError() {
		return responseError("delete transaction "+id, res)
	}
	return nil
}

func (e *Elasticsearch) Ping(ctx context.Context) error {
	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

func (e *Elasticsearch) Close(ctx context.Context) error { return nil }

func responseError(op string, res *esapi.Response) error {
	return fmt.Errorf("%s: elasticsearch responded %s", op, res.Status())
}

var _ Store = (*Elasticsearch)(nil)
