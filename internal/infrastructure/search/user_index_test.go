package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
)

type recorded struct {
	method, path string
	body         map[string]any
}

func newFakeES(t *testing.T, status int, reply string) (*UserIndex, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewUserIndex(es, "users", nil), &calls
}

func sampleUser() *entity.User {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &entity.User{
		ID:           "u1",
		Name:         "Ana",
		Email:        "ana@x.com",
		PasswordHash: "secret-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDocument_OmitsPasswordHash(t *testing.T) {
	doc := Document(sampleUser())
	assert.Equal(t, "ana@x.com", doc["email"])
	assert.Equal(t, true, doc["active"])
	for _, v := range doc {
		assert.NotEqual(t, "secret-hash", v)
	}
}

func TestUserIndex_UserCreated(t *testing.T) {
	idx, calls := newFakeES(t, http.StatusCreated, `{"result":"created"}`)

	require.NoError(t, idx.UserCreated(context.Background(), sampleUser()))
	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/users/_doc/u1", c.path)
	assert.Equal(t, "Ana", c.body["name"])
	assert.NotContains(t, c.body, "password_hash")
}

func TestUserIndex_UserCreatedReportsErrorStatus(t *testing.T) {
	idx, _ := newFakeES(t, http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`)
	err := idx.UserCreated(context.Background(), sampleUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestUserIndex_SearchUsers(t *testing.T) {
	idx, calls := newFakeES(t, http.StatusOK, `{"hits":{"hits":[
		{"_id":"u1","_source":{"id":"u1","email":"ana@x.com","name":"Ana"}},
		{"_id":"u2","_source":{"id":"u2","email":"anabel@x.com","name":"Anabel"}}
	]}}`)

	hits, err := idx.SearchUsers(context.Background(), "ana", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "anabel@x.com", hits[1]["email"])

	require.Len(t, *calls, 1)
	assert.True(t, strings.HasSuffix((*calls)[0].path, "/users/_search"))
	assert.EqualValues(t, 5, (*calls)[0].body["size"])
}

func TestUserIndex_NilClientIsNoop(t *testing.T) {
	idx := NewUserIndex(nil, "users", nil)
	assert.NoError(t, idx.UserCreated(context.Background(), sampleUser()))
	hits, err := idx.SearchUsers(context.Background(), "ana", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDecodeHits_Malformed(t *testing.T) {
	_, err := decodeHits(strings.NewReader("{"))
	assert.Error(t, err)
}

func newRoutedES(t *testing.T, route func(method, path string) int) (*UserIndex, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(route(r.Method, r.URL.Path))
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewUserIndex(es, "users", nil), &calls
}

func TestEnsureIndex_CreatesMissingIndex(t *testing.T) {
	idx, calls := newRoutedES(t, func(method, _ string) int {
		if method == http.MethodHead {
			return http.StatusNotFound
		}
		return http.StatusOK
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, *calls, 2)
	create := (*calls)[1]
	assert.Equal(t, http.MethodPut, create.method)
	assert.Equal(t, "/users", create.path)
	assert.Contains(t, create.body, "mappings")
}

func TestEnsureIndex_ExistingIndexIsLeftAlone(t *testing.T) {
	idx, calls := newRoutedES(t, func(string, string) int { return http.StatusOK })

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodHead, (*calls)[0].method)
}

func TestEnsureIndex_CreateFailure(t *testing.T) {
	idx, _ := newRoutedES(t, func(method, _ string) int {
		if method == http.MethodHead {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	})

	err := idx.EnsureIndex(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "create index"))
}
