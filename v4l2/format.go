package v4l2

import "unsafe"

// PutPixFormat packs p into f's union storage for single-plane capture.
func (f *Format) PutPixFormat(p PixFormat) {
	*(*PixFormat)(unsafe.Pointer(&f.Raw[0])) = p
}

// PixFormat unpacks f's union storage as a single-plane pix format.
func (f *Format) PixFormat() PixFormat {
	return *(*PixFormat)(unsafe.Pointer(&f.Raw[0]))
}

// PutPixFormatMPlane packs p into f's union storage for multi-plane
// capture.
func (f *Format) PutPixFormatMPlane(p PixFormatMPlane) {
	*(*PixFormatMPlane)(unsafe.Pointer(&f.Raw[0])) = p
}

// PixFormatMPlane unpacks f's union storage as a multi-plane pix format.
func (f *Format) PixFormatMPlane() PixFormatMPlane {
	return *(*PixFormatMPlane)(unsafe.Pointer(&f.Raw[0]))
}

// SetOffset stores a plane's mmap offset in the buffer's union field (MMAP,
// single-plane).
func (b *Buffer) SetOffset(off uint32) { b.M = uint64(off) }

// Offset reads back a plane's mmap offset (MMAP, single-plane).
func (b *Buffer) Offset() uint32 { return uint32(b.M) }

// SetUserptr stores a userspace pointer in the buffer's union field
// (USERPTR, single-plane).
func (b *Buffer) SetUserptr(ptr uintptr) { b.M = uint64(ptr) }

// SetPlanes stores a pointer to the first element of a []Plane array in
// the buffer's union field (multi-plane, either memory model). Length must
// be set to the plane count by the caller.
func (b *Buffer) SetPlanes(planes []Plane) {
	if len(planes) == 0 {
		b.M = 0
		return
	}
	b.M = uint64(uintptr(unsafe.Pointer(&planes[0])))
}

// SetMemOffset stores a plane's mmap offset in a Plane's union field
// (MMAP, multi-plane).
func (p *Plane) SetMemOffset(off uint32) { p.M = uint64(off) }

// MemOffset reads back a plane's mmap offset (MMAP, multi-plane).
func (p *Plane) MemOffset() uint32 { return uint32(p.M) }

// SetUserptr stores a userspace pointer in a Plane's union field
// (USERPTR, multi-plane).
func (p *Plane) SetUserptr(ptr uintptr) { p.M = uint64(ptr) }
