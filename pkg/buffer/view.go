// Package buffer provides the upper-stack packet buffers the glue hands to
// and takes from the MAC layer, and byte views over them.
package buffer

// View is a window into packet storage.
type View []byte

// VectorisedView strings together the windows of a buffer chain without
// copying them.
type VectorisedView struct {
	views []View
	size  int
}

// NewVectorisedView wraps views; size must be their combined length.
func NewVectorisedView(size int, views []View) VectorisedView {
	return VectorisedView{views: views, size: size}
}

// TrimFront 丢弃开头的n个字节，跨越整个View时直接丢弃该View
func (vv *VectorisedView) TrimFront(n int) {
	for n > 0 && len(vv.views) > 0 {
		head := vv.views[0]
		if n < len(head) {
			vv.views[0] = head[n:]
			vv.size -= n
			return
		}
		n -= len(head)
		vv.size -= len(head)
		vv.views = vv.views[1:]
	}
}

// First returns the leading view, or nil when there is none.
func (vv VectorisedView) First() View {
	if len(vv.views) > 0 {
		return vv.views[0]
	}
	return nil
}

// Size is the byte count across all views.
func (vv VectorisedView) Size() int { return vv.size }

// ToView copies the chain into one contiguous View.
func (vv VectorisedView) ToView() View {
	out := make(View, 0, vv.size)
	for _, v := range vv.views {
		out = append(out, v...)
	}
	return out
}

// Views exposes the underlying windows. Callers must not modify them.
func (vv VectorisedView) Views() []View { return vv.views }
