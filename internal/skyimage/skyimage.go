// Package skyimage holds the preview image snapshot served over HTTP and a
// built-in provider that renders placeholder frames. The real HiPS/DSS
// mosaicking pipeline is an external collaborator behind the same interface.
package skyimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"

	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/sim"
)

// Preview is the single byte-blob snapshot served by the Temp image path.
// Replaced atomically whenever a provider yields a new frame.
type Preview struct {
	blob atomic.Pointer[[]byte]
}

// NewPreview creates an empty preview store.
func NewPreview() *Preview {
	return &Preview{}
}

// Bytes returns the current snapshot, or nil before the first frame.
func (p *Preview) Bytes() []byte {
	b := p.blob.Load()
	if b == nil {
		return nil
	}
	return *b
}

// Set replaces the snapshot.
func (p *Preview) Set(blob []byte) {
	cp := append([]byte(nil), blob...)
	p.blob.Store(&cp)
}

// FlatProvider renders a uniform dark frame for every request. It stands in
// for the sky-image pipeline when the simulator runs without one.
type FlatProvider struct {
	preview *Preview
	onReady func(fileLocation string)
}

// NewFlatProvider builds a provider that writes frames into preview and
// reports each finished frame's file location through onReady. onReady may
// be nil. The preview is seeded with one frame immediately so the HTTP
// preview path has bytes before any activity has requested an image.
func NewFlatProvider(preview *Preview, onReady func(fileLocation string)) *FlatProvider {
	if blob, err := renderFlatFrame(); err == nil {
		preview.Set(blob)
	} else {
		monitoring.Logf("failed to render initial preview frame: %v", err)
	}
	return &FlatProvider{preview: preview, onReady: onReady}
}

// RequestImage renders a frame for the position and publishes it. The render
// is cheap, so it runs synchronously on a spawned goroutine to preserve the
// provider's asynchronous contract.
func (f *FlatProvider) RequestImage(pos sim.SkyPosition) {
	go func() {
		blob, err := renderFlatFrame()
		if err != nil {
			monitoring.Logf("failed to render preview frame for %s: %v", pos.Name, err)
			return
		}
		f.preview.Set(blob)
		if f.onReady != nil {
			f.onReady(fmt.Sprintf("/SmartScope-1.0/dev2/Images/Temp/%s.jpg", pos.Name))
		}
	}()
}

// renderFlatFrame encodes a small uniform near-black JPEG.
func renderFlatFrame() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	bg := color.RGBA{R: 4, G: 4, B: 10, A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, bg)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode preview jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
