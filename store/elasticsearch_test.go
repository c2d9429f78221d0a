package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster answers the handful of document APIs the store uses.
type fakeCluster struct {
	mu       sync.Mutex
	order    []string
	docs     map[string]json.RawMessage
	seqNo    map[string]int
	searches int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{docs: map[string]json.RawMessage{}, seqNo: map[string]int{}}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		w.Write([]byte(`{"acknowledged":true}`))
	case len(parts) == 3 && parts[1] == "_create":
		var doc json.RawMessage
		json.NewDecoder(r.Body).Decode(&doc)
		f.docs[parts[2]] = doc
		f.seqNo[parts[2]] = 0
		f.order = append(f.order, parts[2])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodPut:
		seq, ok := f.seqNo[parts[2]]
		if want := r.URL.Query().Get("if_seq_no"); want != "" && (!ok || want != strconv.Itoa(seq)) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"}}`))
			return
		}
		var doc json.RawMessage
		json.NewDecoder(r.Body).Decode(&doc)
		f.docs[parts[2]] = doc
		f.seqNo[parts[2]] = seq + 1
		w.Write([]byte(`{"result":"updated"}`))
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodGet:
		doc, ok := f.docs[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"found":false}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"_id": parts[2], "found": true, "_seq_no": f.seqNo[parts[2]], "_primary_term": 1, "_source": doc,
		})
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		if _, ok := f.docs[parts[2]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"result":"not_found"}`))
			return
		}
		delete(f.docs, parts[2])
		delete(f.seqNo, parts[2])
		for i, id := range f.order {
			if id == parts[2] {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
		w.Write([]byte(`{"result":"deleted"}`))
	case len(parts) == 2 && parts[1] == "_search":
		f.searches++
		var body struct {
			SearchAfter []interface{} `json:"search_after"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		size, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil {
			size = 10
		}
		// Sort values are [position, id]; search_after resumes past position.
		start := 0
		if len(body.SearchAfter) > 0 {
			start = int(body.SearchAfter[0].(float64)) + 1
		}
		hits := []map[string]interface{}{}
		for i := start; i < len(f.order) && len(hits) < size; i++ {
			id := f.order[i]
			hits = append(hits, map[string]interface{}{"_id": id, "_source": f.docs[id], "sort": []interface{}{i, id}})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"hits": map[string]interface{}{"hits": hits}})
	default:
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unexpected request"}`))
	}
}

func TestElasticsearch(t *testing.T) {
	ctx := context.Background()
	cluster := newFakeCluster()
	server := httptest.NewServer(cluster)
	defer server.Close()

	s, err := NewElasticsearch(ctx, server.URL, Options{})
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	created, err := s.Create(ctx, fixture(models.Expense, "Rent", "Housing", 1200))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []models.Transaction{*created}, all)

	changed := *created
	changed.Amount = 1300
	_, err = s.Update(ctx, &changed)
	require.NoError(t, err)
	got, err = s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1300.0, got.Amount)

	ghost := changed
	ghost.ID = "ghost"
	_, err = s.Update(ctx, &ghost)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.True(t, errors.Is(s.Delete(ctx, created.ID), models.ErrNotFound))

	require.NoError(t, s.Ping(ctx))
}

func TestElasticsearchListPages(t *testing.T) {
	ctx := context.Background()
	cluster := newFakeCluster()
	server := httptest.NewServer(cluster)
	defer server.Close()

	s, err := NewElasticsearch(ctx, server.URL, Options{})
	require.NoError(t, err)
	s.pageSize = 2

	var want []models.Transaction
	for _, desc := range []string{"Rent", "Power", "Water", "Internet", "Phone"} {
		created, err := s.Create(ctx, fixture(models.Expense, desc, "Housing", 10))
		require.NoError(t, err)
		want = append(want, *created)
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, want, all)
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Equal(t, 3, cluster.searches)
}

func TestElasticsearchUpdateReplacesDocument(t *testing.T) {
	ctx := context.Background()
	cluster := newFakeCluster()
	server := httptest.NewServer(cluster)
	defer server.Close()

	s, err := NewElasticsearch(ctx, server.URL, Options{})
	require.NoError(t, err)

	created, err := s.Create(ctx, fixture(models.Expense, "Rent", "Housing", 1200))
	require.NoError(t, err)

	replacement := models.Transaction{ID: created.ID, Type: models.Income, Description: "Refund", Amount: 5, Category: "Misc"}
	_, err = s.Update(ctx, &replacement)
	require.NoError(t, err)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, &replacement, got)
	assert.True(t, got.Date.IsZero(), "fields absent from the replacement are not merged from the old document")
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Equal(t, 1, cluster.seqNo[created.ID])
}
