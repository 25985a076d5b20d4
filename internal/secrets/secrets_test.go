package secrets

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	value []byte
}

func (p *countingProvider) Password() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return append([]byte(nil), p.value...), nil
}

func TestStaticProvider(t *testing.T) {
	p := &StaticProvider{Value: []byte("hunter2")}
	pw, err := p.Password()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(pw))

	empty := &StaticProvider{}
	_, err = empty.Password()
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestCachingProviderAsksOnce(t *testing.T) {
	inner := &countingProvider{value: []byte("hunter2")}
	p := NewCaching(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw, err := p.Password()
			assert.NoError(t, err)
			assert.Equal(t, "hunter2", string(pw))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inner.calls)
}

func TestCachingProviderZero(t *testing.T) {
	inner := &countingProvider{value: []byte("hunter2")}
	p := NewCaching(inner)

	_, err := p.Password()
	require.NoError(t, err)
	p.Zero()

	_, err = p.Password()
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "zeroing forces a fresh prompt")
}

func TestCachingProviderCopiesAreIndependent(t *testing.T) {
	p := NewCaching(&countingProvider{value: []byte("hunter2")})

	first, err := p.Password()
	require.NoError(t, err)
	first[0] = 'X'

	second, err := p.Password()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(second))
}

func TestScrub(t *testing.T) {
	line := "echo hunter2 | sudo -S true"
	assert.Equal(t, "echo ******** | sudo -S true", Scrub(line, []byte("hunter2")))
	assert.Equal(t, line, Scrub(line, nil))

	lines := ScrubAll([]string{"a hunter2 b", "clean"}, []byte("hunter2"))
	assert.Equal(t, []string{"a ******** b", "clean"}, lines)
}
