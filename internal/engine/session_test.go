package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func TestUUIDv7Generator_ValidFormat(t *testing.T) {
	gen := UUIDv7Generator{}
	token := gen.Generate()

	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, token)

	parsed, err := uuid.Parse(token)
	require.NoError(t, err, "token should be valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	tokens := make(chan string, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens <- gen.Generate()
		}()
	}

	wg.Wait()
	close(tokens)

	seen := make(map[string]bool)
	for token := range tokens {
		require.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
	assert.Equal(t, goroutines, len(seen))
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("session-1", "session-2", "session-3")

	assert.Equal(t, "session-1", gen.Generate())
	assert.Equal(t, "session-2", gen.Generate())
	assert.Equal(t, "session-3", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("session-1")

	assert.Equal(t, "session-1", gen.Generate())
	assert.Panics(t, func() {
		gen.Generate()
	}, "should panic when all tokens exhausted")

	assert.Panics(t, func() {
		NewFixedGenerator().Generate()
	}, "should panic when no tokens provided")
}

func TestEngine_New_WithUUIDv7(t *testing.T) {
	e, err := New(context.Background(), []ir.ClusterID{0}, nil, UUIDv7Generator{}, WithLogger(discardLogger()))
	require.NoError(t, err)

	parsed, err := uuid.Parse(e.Session().ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewSession_KeepsHeader(t *testing.T) {
	sess := ir.Session{
		ID:         "journaled",
		Assignment: []ir.ClusterID{5, 5, 7},
		Fields:     testFields,
		Propagate:  true,
	}
	j := NewMemoryJournal()

	e, err := NewSession(context.Background(), sess, WithJournal(j), WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.Equal(t, sess, e.Session())
	assert.Equal(t, ir.ClusterID(8), e.Clustering().NewClusterID())

	_, err = j.ReadSession(context.Background(), "journaled")
	assert.Error(t, err, "header is not rewritten")
}
