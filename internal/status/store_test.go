package status

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqworkbench/dqsync/pkg/types"
)

func sum(id string) types.RunSummary { return types.RunSummary{ID: id} }

func TestStore_PutGet(t *testing.T) {
	s := NewStore(5)
	s.Put(sum("a"))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ListNewestFirstAndLimit(t *testing.T) {
	s := NewStore(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Put(sum(id))
	}
	ids := []string{}
	for _, r := range s.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"d", "c", "b"}, ids)
	assert.Equal(t, 3, s.Count())

	last, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "d", last.ID)
}

func TestStore_PutReplaces(t *testing.T) {
	s := NewStore(3)
	s.Put(types.RunSummary{ID: "a"})
	s.Put(types.RunSummary{ID: "a", FirstError: "x"})
	assert.Equal(t, 1, s.Count())
	got, _ := s.Get("a")
	assert.Equal(t, "x", got.FirstError)
}

func TestStore_Empty(t *testing.T) {
	s := NewStore(0)
	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Empty(t, s.List())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(10)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put(sum(fmt.Sprintf("r%d", i)))
		}()
		go func() {
			defer wg.Done()
			s.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, s.Count())
}
