package skyimage

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfield-data/originsim/internal/sim"
)

func TestPreviewStartsEmpty(t *testing.T) {
	p := NewPreview()
	assert.Nil(t, p.Bytes())
}

func TestPreviewSetCopiesBlob(t *testing.T) {
	p := NewPreview()
	src := []byte{1, 2, 3}
	p.Set(src)
	src[0] = 99

	assert.Equal(t, []byte{1, 2, 3}, p.Bytes())
}

func TestFlatProviderSeedsPreview(t *testing.T) {
	p := NewPreview()
	require.Nil(t, p.Bytes())

	NewFlatProvider(p, nil)

	// The preview path must serve bytes from the first request onward, before
	// any slew or exposure has produced a frame.
	blob := p.Bytes()
	require.NotEmpty(t, blob)
	assert.True(t, bytes.HasPrefix(blob, []byte{0xFF, 0xD8}))
}

func TestFlatProviderPublishesFrame(t *testing.T) {
	p := NewPreview()
	var mu sync.Mutex
	var locations []string
	fp := NewFlatProvider(p, func(loc string) {
		mu.Lock()
		defer mu.Unlock()
		locations = append(locations, loc)
	})

	fp.RequestImage(sim.SkyPosition{RADeg: 10, DecDeg: 20, Name: "test_field"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(locations) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Contains(t, locations[0], "test_field")
	mu.Unlock()

	blob := p.Bytes()
	require.NotEmpty(t, blob)
	// JPEG SOI marker.
	assert.True(t, bytes.HasPrefix(blob, []byte{0xFF, 0xD8}))
}
