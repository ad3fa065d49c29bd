package jsonsql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhereShapes(t *testing.T) {
	w := And(Eq("status", "active"), Like("name", "a%"), Gt("id", 10))

	data, err := json.Marshal(w)
	require.NoError(t, err)

	assert.JSONEq(t, `{"and": [
		{"eq": ["status", "active"]},
		{"like": ["name", "a%"]},
		{"gt": ["id", 10]}
	]}`, string(data))
}

func TestAndCollapsesSingleOperand(t *testing.T) {
	w := And(Eq("deleted_at", nil))

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"eq": ["deleted_at", null]}`, string(data))
}

func TestRequestBuilders(t *testing.T) {
	req := Select("users", []string{"*"}).
		WithLimit(100).
		WithOffset(200).
		WithOrderBy("id").
		WithWhere(Eq("active", true))

	data, err := json.Marshal(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"method": "select",
		"params": {
			"data": ["*"],
			"from": "users",
			"where": {"eq": ["active", true]},
			"limit": 100,
			"offset": 200,
			"order_by": "id"
		}
	}`, string(data))
}

func TestHTTPClientExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, MethodSelect, req.Method)
		assert.Equal(t, "users", req.Params.From)

		w.Write([]byte(`{"result": [[1, "alice"], [2, "bob"]]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	res, err := client.Execute(context.Background(), Select("users", []string{"*"}))
	require.NoError(t, err)
	require.Len(t, res, 2)

	id, ok := AsInt64(res[0][0])
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	name, ok := AsString(res[1][1])
	require.True(t, ok)
	assert.Equal(t, "bob", name)
}

func TestHTTPClientAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	_, err := client.Execute(context.Background(), Select("users", []string{"*"}))
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))
	assert.False(t, IsTransport(err))
}

func TestHTTPClientErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"code": 400, "message": "bad from clause"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	_, err := client.Execute(context.Background(), Select("users", []string{"*"}))
	require.Error(t, err)
	assert.False(t, IsAccessDenied(err))
	assert.Contains(t, err.Error(), "bad from clause")
}

func TestHTTPClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	_, err := client.Execute(context.Background(), Select("users", []string{"*"}))
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestScalar(t *testing.T) {
	res := Result{{json.Number("42")}}
	v, ok := res.Scalar()
	require.True(t, ok)
	n, ok := AsInt64(v)
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Result{}.Scalar()
	assert.False(t, ok)
}
