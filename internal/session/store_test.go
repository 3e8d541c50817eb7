package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLazyCreateAndOverwrite(t *testing.T) {
	s := NewStore()

	got, ok := s.Get(42)
	assert.False(t, ok)
	assert.Equal(t, int64(42), got.ChatID)
	assert.False(t, got.HasResponse)
	assert.Equal(t, 0, s.Len())

	s.SetLastResponse(42, "שלום")
	s.SetLastResponse(42, "השעה היא שלוש")

	got, ok = s.Get(42)
	require.True(t, ok)
	assert.Equal(t, "השעה היא שלוש", got.LastResponse)
	assert.True(t, got.HasResponse)
	assert.Equal(t, 1, s.Len())
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.SetLastResponse(1, "a")

	got, _ := s.Get(1)
	got.LastResponse = "mutated"

	again, _ := s.Get(1)
	assert.Equal(t, "a", again.LastResponse)
}

func TestStoreConcurrentChats(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for chat := int64(1); chat <= 50; chat++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				s.SetLastResponse(chat, fmt.Sprintf("chat-%d-%d", chat, i))
			}
		}(chat)
	}
	wg.Wait()

	require.Equal(t, 50, s.Len())
	for chat := int64(1); chat <= 50; chat++ {
		got, ok := s.Get(chat)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("chat-%d-19", chat), got.LastResponse)
	}
}
