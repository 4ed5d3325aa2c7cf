package software

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
)

type buffer struct {
	label     string
	usage     gpucore.BufferUsage
	data      []byte
	destroyed bool
}

func (b *buffer) write(offset uint64, data []byte) error {
	if b.destroyed {
		return fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
	}
	if offset > uint64(len(b.data)) || uint64(len(data)) > uint64(len(b.data))-offset {
		return fmt.Errorf("buffer %q write %d bytes at %d (size %d): %w",
			b.label, len(data), offset, len(b.data), ErrOutOfBounds)
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) span(offset, size uint64) ([]byte, error) {
	if b.destroyed {
		return nil, fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
	}
	if offset > uint64(len(b.data)) || size > uint64(len(b.data))-offset {
		return nil, fmt.Errorf("buffer %q range %d+%d (size %d): %w",
			b.label, offset, size, len(b.data), ErrOutOfBounds)
	}
	return b.data[offset : offset+size], nil
}

type texture struct {
	desc      gpucore.TextureDescriptor
	data      []byte
	destroyed bool
}

type textureView struct {
	texture *texture
	desc    gpucore.TextureViewDescriptor
}

type sampler struct {
	desc gpucore.SamplerDescriptor
}

type bindGroupLayout struct {
	label   string
	entries []gpucore.BindGroupLayoutEntry
}

type pipelineLayout struct {
	label string
}

type bindGroup struct {
	label string
}

type shaderModule struct {
	label string
	words []uint32
}

type computePipeline struct {
	label string
}

type renderPipeline struct {
	label string
}

type querySet struct {
	desc      gpucore.QuerySetDescriptor
	results   [][]uint64
	available []bool

	// begun holds counter snapshots of queries that are in progress.
	begun map[uint32][5]uint64
}

func (q *querySet) check(first, count uint32) error {
	if uint64(first)+uint64(count) > uint64(len(q.available)) {
		return fmt.Errorf("query set %q range %d+%d (count %d): %w",
			q.desc.Label, first, count, len(q.available), ErrOutOfBounds)
	}
	return nil
}

type commandBuffer struct {
	label    string
	ops      []func() error
	consumed bool
}

func asBuffer(h backend.Buffer) (*buffer, error) {
	b, ok := h.(*buffer)
	if !ok {
		return nil, fmt.Errorf("buffer %T: %w", h, backend.ErrForeignHandle)
	}
	return b, nil
}

func asTexture(h backend.Texture) (*texture, error) {
	t, ok := h.(*texture)
	if !ok {
		return nil, fmt.Errorf("texture %T: %w", h, backend.ErrForeignHandle)
	}
	return t, nil
}

func asQuerySet(h backend.QuerySet) (*querySet, error) {
	q, ok := h.(*querySet)
	if !ok {
		return nil, fmt.Errorf("query set %T: %w", h, backend.ErrForeignHandle)
	}
	return q, nil
}

// BufferContents returns a copy of a software buffer's bytes.
// It reports false for handles from another implementation.
func BufferContents(h backend.Buffer) ([]byte, bool) {
	b, ok := h.(*buffer)
	if !ok {
		return nil, false
	}
	return slices.Clone(b.data), true
}

// TextureContents returns a copy of a software texture's first mip level,
// rows tightly packed.
func TextureContents(h backend.Texture) ([]byte, bool) {
	t, ok := h.(*texture)
	if !ok {
		return nil, false
	}
	return slices.Clone(t.data), true
}

// copyTexels moves a region between linear memory and a texture. With
// toTexture set, linear is the source.
func copyTexels(linear []byte, layout gpucore.TextureDataLayout, t *texture, region *backend.ImageCopyTexture, size gpucore.Extent3D, toTexture bool) error {
	if t.destroyed {
		return fmt.Errorf("texture %q: %w", t.desc.Label, ErrDestroyed)
	}
	bpp := uint64(t.desc.Format.BytesPerPixel())
	if bpp == 0 || region.MipLevel != 0 {
		return fmt.Errorf("texture %q format %d mip %d: %w",
			t.desc.Label, t.desc.Format, region.MipLevel, ErrUnsupportedLayout)
	}

	o := region.Origin
	ts := t.desc.Size
	layers := max(ts.DepthOrArrayLayers, 1)
	if uint64(o.X)+uint64(size.Width) > uint64(ts.Width) ||
		uint64(o.Y)+uint64(size.Height) > uint64(ts.Height) ||
		uint64(o.Z)+uint64(size.DepthOrArrayLayers) > uint64(layers) {
		return fmt.Errorf("texture %q region exceeds %dx%dx%d: %w",
			t.desc.Label, ts.Width, ts.Height, layers, ErrOutOfBounds)
	}

	rowBytes := uint64(size.Width) * bpp
	bytesPerRow := uint64(layout.BytesPerRow)
	if bytesPerRow == 0 {
		bytesPerRow = rowBytes
	}
	rowsPerImage := uint64(layout.RowsPerImage)
	if rowsPerImage == 0 {
		rowsPerImage = uint64(size.Height)
	}
	pitch := uint64(ts.Width) * bpp

	for z := uint64(0); z < uint64(size.DepthOrArrayLayers); z++ {
		for y := uint64(0); y < uint64(size.Height); y++ {
			lin := layout.Offset + z*rowsPerImage*bytesPerRow + y*bytesPerRow
			if lin+rowBytes > uint64(len(linear)) {
				return fmt.Errorf("texture %q row %d of layer %d: linear data: %w",
					t.desc.Label, y, z, ErrOutOfBounds)
			}
			tex := ((uint64(o.Z)+z)*uint64(ts.Height)+uint64(o.Y)+y)*pitch + uint64(o.X)*bpp
			if toTexture {
				copy(t.data[tex:tex+rowBytes], linear[lin:lin+rowBytes])
			} else {
				copy(linear[lin:lin+rowBytes], t.data[tex:tex+rowBytes])
			}
		}
	}
	return nil
}
