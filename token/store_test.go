package token_test

import (
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-client/token"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAbsentIsNotEmpty(t *testing.T) {
	s := token.NewMemoryStore()

	_, ok := s.Load(token.Access)
	require.False(t, ok)

	s.Save(token.Access, "")
	v, ok := s.Load(token.Access)
	require.True(t, ok)
	require.Equal(t, "", v)

	_, ok = s.Load(token.Refresh)
	require.False(t, ok)
}

func TestMemoryStoreClear(t *testing.T) {
	s := token.NewMemoryStore()
	s.Save(token.Access, "a1")
	s.Save(token.Refresh, "r1")

	s.Clear()

	for _, kind := range token.Kinds {
		_, ok := s.Load(kind)
		require.False(t, ok, "slot %s should be absent", kind)
	}
	require.Empty(t, s.Snapshot())
}

func TestMemoryStoreSlotsAreIndependent(t *testing.T) {
	s := token.NewMemoryStore()
	s.Save(token.Refresh, "r1")
	s.Save(token.Access, "a1")
	s.Save(token.Access, "a2")

	v, _ := s.Load(token.Access)
	require.Equal(t, "a2", v)
	v, _ = s.Load(token.Refresh)
	require.Equal(t, "r1", v)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := token.NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Save(token.Access, "a")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Load(token.Access)
		}()
	}
	wg.Wait()

	v, ok := s.Load(token.Access)
	require.True(t, ok)
	require.Equal(t, "a", v)
}
