package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/types"
)

func descriptor(name string) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:        name,
		Description: name + " tool",
		ServerID:    "srv-1",
	}
}

func TestStaticCatalog(t *testing.T) {
	src := []types.ToolDescriptor{descriptor("search"), descriptor("calculator")}
	c := NewStaticCatalog(src)

	got, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, src, got)

	// The returned slice is a copy; mutating it leaves the catalog intact.
	got[0].Name = "mutated"
	again, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "search", again[0].Name)
}

func TestHTTPCatalog(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[{"name":"search","description":"find things","serverId":"srv-1"}]`))
		}))
		defer srv.Close()

		got, err := NewHTTPCatalog(srv.URL, 0, nil).List(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "search", got[0].Name)
		assert.Equal(t, "srv-1", got[0].ServerID)
	})

	t.Run("wrapped object", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"tools":[{"name":"search"},{"name":"calculator"}]}`))
		}))
		defer srv.Close()

		got, err := NewHTTPCatalog(srv.URL, 0, nil).List(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPCatalog(srv.URL, 0, nil).List(context.Background())
		assert.Error(t, err)
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`"just a string"`))
		}))
		defer srv.Close()

		_, err := NewHTTPCatalog(srv.URL, 0, nil).List(context.Background())
		assert.Error(t, err)
	})
}

func TestFilterByName(t *testing.T) {
	all := []types.ToolDescriptor{descriptor("a"), descriptor("b"), descriptor("c")}

	got := FilterByName(all, []string{"c", "a", "ghost"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name, "catalog order is preserved")
	assert.Equal(t, "c", got[1].Name)

	assert.Nil(t, FilterByName(all, nil))
}

func TestUnionForTasks(t *testing.T) {
	all := []types.ToolDescriptor{descriptor("a"), descriptor("b"), descriptor("c")}
	tasks := []*types.Task{
		{ID: "t1", Tools: []string{"b", "a"}},
		{ID: "t2", Tools: []string{"b", "ghost"}},
	}

	got := UnionForTasks(all, tasks)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)

	assert.Nil(t, UnionForTasks(all, []*types.Task{{ID: "t3"}}))
}
