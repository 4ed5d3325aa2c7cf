package command

import (
	"fmt"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// copyAlignment is the required alignment of buffer copy offsets and
// sizes.
const copyAlignment uint64 = 4

func (e *encoder) buffer(i id.BufferID) (*hub.Buffer, error) {
	b, err := e.buffers.Get(i)
	if err != nil {
		return nil, err
	}
	if err := owned(e, i, b.Device); err != nil {
		return nil, err
	}
	return b, nil
}

// use moves b to usage to in the command buffer.
func (e *encoder) use(b *hub.Buffer, to gpucore.BufferUse) gpucore.BufferUseTransition {
	return e.cb.Buffers.Transition(b, to)
}

func (e *encoder) texture(i id.TextureID) (*hub.Texture, error) {
	t, err := e.textures.Get(i)
	if err != nil {
		return nil, err
	}
	if err := owned(e, i, t.Device); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *encoder) copyBufferToBuffer(c trace.CopyBufferToBuffer) error {
	src, err := e.buffer(c.Src)
	if err != nil {
		return err
	}
	dst, err := e.buffer(c.Dst)
	if err != nil {
		return err
	}

	if c.Src == c.Dst {
		return fmt.Errorf("%w: source and destination are the same buffer %s", ErrPrecondition, c.Src)
	}
	if !src.Desc.Usage.Contains(gpucore.BufferUsageCopySrc) {
		return fmt.Errorf("%w: source %s lacks COPY_SRC usage", ErrPrecondition, c.Src)
	}
	if !dst.Desc.Usage.Contains(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("%w: destination %s lacks COPY_DST usage", ErrPrecondition, c.Dst)
	}
	if c.SrcOffset%copyAlignment != 0 {
		return fmt.Errorf("%w: source offset %d is not a multiple of %d", ErrPrecondition, c.SrcOffset, copyAlignment)
	}
	if c.DstOffset%copyAlignment != 0 {
		return fmt.Errorf("%w: destination offset %d is not a multiple of %d", ErrPrecondition, c.DstOffset, copyAlignment)
	}
	if c.Size%copyAlignment != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of %d", ErrPrecondition, c.Size, copyAlignment)
	}
	if c.SrcOffset+c.Size > src.Desc.Size {
		return fmt.Errorf("%w: source offset %d + size %d > buffer size %d", ErrPrecondition, c.SrcOffset, c.Size, src.Desc.Size)
	}
	if c.DstOffset+c.Size > dst.Desc.Size {
		return fmt.Errorf("%w: destination offset %d + size %d > buffer size %d", ErrPrecondition, c.DstOffset, c.Size, dst.Desc.Size)
	}

	e.use(src, gpucore.BufferUseCopySrc)
	e.use(dst, gpucore.BufferUseCopyDst)
	e.cb.Encoder.CopyBufferToBuffer(src.Raw, c.SrcOffset, dst.Raw, c.DstOffset, c.Size)
	return nil
}

// checkTextureRegion validates that size fits at the view's origin in its
// mip level.
func checkTextureRegion(t *hub.Texture, v trace.TextureCopyView, size gpucore.Extent3D, usage gpucore.TextureUsage) error {
	if !t.Desc.Usage.Contains(usage) {
		return fmt.Errorf("%w: texture %s lacks %v usage", ErrPrecondition, v.Texture, usage)
	}
	if v.MipLevel >= max(t.Desc.MipLevelCount, 1) {
		return fmt.Errorf("%w: mip level %d >= mip count %d", ErrPrecondition, v.MipLevel, t.Desc.MipLevelCount)
	}
	w := max(t.Desc.Size.Width>>v.MipLevel, 1)
	h := max(t.Desc.Size.Height>>v.MipLevel, 1)
	d := max(t.Desc.Size.DepthOrArrayLayers, 1)
	if t.Desc.Dimension == gpucore.TextureDimension3D {
		d = max(d>>v.MipLevel, 1)
	}
	switch {
	case uint64(v.Origin.X)+uint64(size.Width) > uint64(w):
		return fmt.Errorf("%w: x %d + width %d > %d", ErrPrecondition, v.Origin.X, size.Width, w)
	case uint64(v.Origin.Y)+uint64(size.Height) > uint64(h):
		return fmt.Errorf("%w: y %d + height %d > %d", ErrPrecondition, v.Origin.Y, size.Height, h)
	case uint64(v.Origin.Z)+uint64(size.DepthOrArrayLayers) > uint64(d):
		return fmt.Errorf("%w: z %d + depth %d > %d", ErrPrecondition, v.Origin.Z, size.DepthOrArrayLayers, d)
	}
	return nil
}

// checkBufferLayout validates that the texel data of a copy of size in
// format fits in buf.
func checkBufferLayout(buf *hub.Buffer, layout gpucore.TextureDataLayout, format gpucore.TextureFormat, size gpucore.Extent3D) error {
	bpp := uint64(format.BytesPerPixel())
	if bpp == 0 {
		return fmt.Errorf("%w: format %v has no linear layout", ErrPrecondition, format)
	}
	tight := uint64(size.Width) * bpp
	rowPitch := uint64(layout.BytesPerRow)
	if rowPitch == 0 {
		rowPitch = tight
	}
	if rowPitch < tight {
		return fmt.Errorf("%w: bytes per row %d < row size %d", ErrPrecondition, rowPitch, tight)
	}
	rows := uint64(layout.RowsPerImage)
	if rows == 0 {
		rows = uint64(size.Height)
	}
	if rows < uint64(size.Height) {
		return fmt.Errorf("%w: rows per image %d < height %d", ErrPrecondition, rows, size.Height)
	}

	var need uint64
	if size.Width > 0 && size.Height > 0 && size.DepthOrArrayLayers > 0 {
		need = (uint64(size.DepthOrArrayLayers)-1)*rows*rowPitch + (uint64(size.Height)-1)*rowPitch + tight
	}
	if layout.Offset+need > buf.Desc.Size {
		return fmt.Errorf("%w: offset %d + data size %d > buffer size %d", ErrPrecondition, layout.Offset, need, buf.Desc.Size)
	}
	return nil
}

func imageCopyTexture(t *hub.Texture, v trace.TextureCopyView) *backend.ImageCopyTexture {
	return &backend.ImageCopyTexture{Texture: t.Raw, MipLevel: v.MipLevel, Origin: v.Origin, Aspect: v.Aspect}
}

func (e *encoder) copyBufferToTexture(c trace.CopyBufferToTexture) error {
	src, err := e.buffer(c.Src.Buffer)
	if err != nil {
		return err
	}
	dst, err := e.texture(c.Dst.Texture)
	if err != nil {
		return err
	}
	if !src.Desc.Usage.Contains(gpucore.BufferUsageCopySrc) {
		return fmt.Errorf("%w: source %s lacks COPY_SRC usage", ErrPrecondition, c.Src.Buffer)
	}
	if err := checkTextureRegion(dst, c.Dst, c.Size, gpucore.TextureUsageCopyDst); err != nil {
		return err
	}
	if err := checkBufferLayout(src, c.Src.Layout, dst.Desc.Format, c.Size); err != nil {
		return err
	}

	e.use(src, gpucore.BufferUseCopySrc)
	e.cb.Encoder.CopyBufferToTexture(
		&backend.ImageCopyBuffer{Buffer: src.Raw, Layout: c.Src.Layout},
		imageCopyTexture(dst, c.Dst),
		c.Size)
	return nil
}

func (e *encoder) copyTextureToBuffer(c trace.CopyTextureToBuffer) error {
	src, err := e.texture(c.Src.Texture)
	if err != nil {
		return err
	}
	dst, err := e.buffer(c.Dst.Buffer)
	if err != nil {
		return err
	}
	if !dst.Desc.Usage.Contains(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("%w: destination %s lacks COPY_DST usage", ErrPrecondition, c.Dst.Buffer)
	}
	if err := checkTextureRegion(src, c.Src, c.Size, gpucore.TextureUsageCopySrc); err != nil {
		return err
	}
	if err := checkBufferLayout(dst, c.Dst.Layout, src.Desc.Format, c.Size); err != nil {
		return err
	}

	e.use(dst, gpucore.BufferUseCopyDst)
	e.cb.Encoder.CopyTextureToBuffer(
		imageCopyTexture(src, c.Src),
		&backend.ImageCopyBuffer{Buffer: dst.Raw, Layout: c.Dst.Layout},
		c.Size)
	return nil
}

func (e *encoder) copyTextureToTexture(c trace.CopyTextureToTexture) error {
	src, err := e.texture(c.Src.Texture)
	if err != nil {
		return err
	}
	dst, err := e.texture(c.Dst.Texture)
	if err != nil {
		return err
	}
	if src.Desc.Format != dst.Desc.Format {
		return fmt.Errorf("%w: source format %v != destination format %v", ErrPrecondition, src.Desc.Format, dst.Desc.Format)
	}
	if err := checkTextureRegion(src, c.Src, c.Size, gpucore.TextureUsageCopySrc); err != nil {
		return err
	}
	if err := checkTextureRegion(dst, c.Dst, c.Size, gpucore.TextureUsageCopyDst); err != nil {
		return err
	}

	e.cb.Encoder.CopyTextureToTexture(imageCopyTexture(src, c.Src), imageCopyTexture(dst, c.Dst), c.Size)
	return nil
}
