package gstreamer

/*
#cgo pkg-config: gstreamer-1.0 gstreamer-video-1.0
#include <gst/gst.h>
#include <gst/video/video.h>

// framesink_video_meta copies the plane layout of the buffer's video meta
static gboolean framesink_video_meta(GstBuffer *buffer, guint *planes, gsize *offsets, gint *strides) {
    GstVideoMeta *meta = gst_buffer_get_video_meta(buffer);
    guint i;

    if (meta == NULL) {
        return FALSE;
    }

    *planes = meta->n_planes;
    for (i = 0; i < meta->n_planes && i < GST_VIDEO_MAX_PLANES; i++) {
        offsets[i] = meta->offset[i];
        strides[i] = meta->stride[i];
    }
    return TRUE;
}
*/
import "C"

import (
	"unsafe"

	"github.com/go-gst/go-gst/gst"

	"github.com/open-beagle/framesink/internal/media"
)

// GST_VIDEO_MAX_PLANES
const maxVideoPlanes = 4

// videoMetaStrides reads the plane offsets and strides of a GstVideoMeta, if any
func videoMetaStrides(buffer *gst.Buffer) ([]media.PlaneStride, bool) {
	var planes C.guint
	var offsets [maxVideoPlanes]C.gsize
	var strides [maxVideoPlanes]C.gint

	instance := (*C.GstBuffer)(unsafe.Pointer(buffer.Instance()))
	if C.framesink_video_meta(instance, &planes, &offsets[0], &strides[0]) == 0 {
		return nil, false
	}

	n := int(planes)
	if n > maxVideoPlanes {
		n = maxVideoPlanes
	}
	layout := make([]media.PlaneStride, n)
	for i := range layout {
		layout[i] = media.PlaneStride{Offset: int(offsets[i]), Stride: int(strides[i])}
	}
	return layout, true
}
