package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/open-beagle/framesink/internal/media"
)

type fakeBuffer struct {
	data      []byte
	allocator string
	dts       int64
	pts       int64
	delta     bool
	mapErr    error

	mapped   int
	unmapped int
	events   *[]string
}

func newFakeBuffer(data []byte) *fakeBuffer {
	return &fakeBuffer{data: data, dts: media.TimestampNone, pts: media.TimestampNone}
}

func (b *fakeBuffer) Map() ([]byte, error) {
	if b.mapErr != nil {
		return nil, b.mapErr
	}
	b.mapped++
	b.record("buffer-map")
	return b.data, nil
}

func (b *fakeBuffer) Unmap() {
	b.unmapped++
	b.record("buffer-unmap")
}

func (b *fakeBuffer) record(event string) {
	if b.events != nil {
		*b.events = append(*b.events, event)
	}
}

func (b *fakeBuffer) AllocatorName() string        { return b.allocator }
func (b *fakeBuffer) DecodeTimestamp() int64       { return b.dts }
func (b *fakeBuffer) PresentationTimestamp() int64 { return b.pts }
func (b *fakeBuffer) DeltaUnit() bool              { return b.delta }

type fakeStructure struct {
	name string
	ints map[string]int
	strs map[string]string
}

func (s *fakeStructure) Name() string { return s.name }

func (s *fakeStructure) Int(field string) (int, bool) {
	v, ok := s.ints[field]
	return v, ok
}

func (s *fakeStructure) Str(field string) (string, bool) {
	v, ok := s.strs[field]
	return v, ok
}

type fakeCaps struct {
	structures []*fakeStructure
}

func (c *fakeCaps) Size() int { return len(c.structures) }

func (c *fakeCaps) Structure(i int) Structure {
	if i < 0 || i >= len(c.structures) {
		return nil
	}
	return c.structures[i]
}

func (c *fakeCaps) String() string {
	if len(c.structures) == 0 {
		return "EMPTY"
	}
	return c.structures[0].name
}

func rawCaps(format string, width, height int) *fakeCaps {
	return &fakeCaps{structures: []*fakeStructure{{
		name: "video/x-raw",
		ints: map[string]int{"width": width, "height": height},
		strs: map[string]string{"format": format},
	}}}
}

func encodedCaps(mediaType string, width, height int) *fakeCaps {
	return &fakeCaps{structures: []*fakeStructure{{
		name: mediaType,
		ints: map[string]int{"width": width, "height": height},
		strs: map[string]string{"stream-format": "byte-stream"},
	}}}
}

// mockSession is a testify mock of SessionWriter
type mockSession struct {
	mock.Mock
}

func (m *mockSession) ID() string {
	return m.Called().String(0)
}

func (m *mockSession) WriteImage(entityPath string, img media.NormalizedImage) error {
	return m.Called(entityPath, img).Error(0)
}

func (m *mockSession) AnnounceCodec(entityPath string, codec media.Codec) (bool, error) {
	args := m.Called(entityPath, codec)
	return args.Bool(0), args.Error(1)
}

func (m *mockSession) AdvanceClock(entityPath string, ts int64) (int64, bool) {
	args := m.Called(entityPath, ts)
	return args.Get(0).(int64), args.Bool(1)
}

func (m *mockSession) WriteSample(entityPath string, sample media.EncodedSample) error {
	return m.Called(entityPath, sample).Error(0)
}

// recordingSession keeps everything written to it, with real clock and announce semantics
type recordingSession struct {
	id        string
	mutex     sync.Mutex
	images    []media.NormalizedImage
	samples   []media.EncodedSample
	announced map[string]media.Codec
	clocks    map[string]int64
	writeErr  error
}

func newRecordingSession(id string) *recordingSession {
	return &recordingSession{
		id:        id,
		announced: make(map[string]media.Codec),
		clocks:    make(map[string]int64),
	}
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) WriteImage(_ string, img media.NormalizedImage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.images = append(s.images, img)
	return nil
}

func (s *recordingSession) AnnounceCodec(entityPath string, codec media.Codec) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.announced[entityPath]; ok {
		return false, nil
	}
	s.announced[entityPath] = codec
	return true, nil
}

func (s *recordingSession) AdvanceClock(entityPath string, ts int64) (int64, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	last, ok := s.clocks[entityPath]
	if ts == media.TimestampNone {
		return last, false
	}
	if ok && ts < last {
		return last, true
	}
	s.clocks[entityPath] = ts
	return ts, false
}

func (s *recordingSession) WriteSample(_ string, sample media.EncodedSample) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.samples = append(s.samples, sample)
	return nil
}

type fakeSource struct {
	session SessionWriter
}

func (f *fakeSource) CurrentSession() (SessionWriter, error) {
	if f.session == nil {
		return nil, media.NewError(media.KindSessionInactive, "lifecycle", "current",
			"no active session", nil)
	}
	return f.session, nil
}

// fakeSurface is a pitched NV12 surface
type fakeSurface struct {
	params  SurfaceParams
	planes  [][]byte
	mapErr  error
	syncErr error
	events  *[]string
}

func (s *fakeSurface) Map() error {
	if s.mapErr != nil {
		return s.mapErr
	}
	s.record("surface-map")
	return nil
}

func (s *fakeSurface) SyncForCPU() error {
	s.record("surface-sync")
	return s.syncErr
}

func (s *fakeSurface) Unmap() error {
	s.record("surface-unmap")
	return nil
}

func (s *fakeSurface) Params() SurfaceParams { return s.params }

func (s *fakeSurface) PlaneData(i int) []byte {
	if i >= len(s.planes) {
		return nil
	}
	return s.planes[i]
}

func (s *fakeSurface) record(event string) {
	if s.events != nil {
		*s.events = append(*s.events, event)
	}
}

type fakeResolver struct {
	surface Surface
	err     error
}

func (r *fakeResolver) Resolve([]byte) (Surface, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.surface, nil
}

// pitchedNV12 lays a tightly packed NV12 frame out with row padding
func pitchedNV12(packed []byte, width, height, lumaPitch, chromaPitch int) *fakeSurface {
	chromaRow := 2 * ((width + 1) / 2)
	chromaRows := (height + 1) / 2

	luma := make([]byte, lumaPitch*height)
	for row := 0; row < height; row++ {
		copy(luma[row*lumaPitch:], packed[row*width:(row+1)*width])
		for pad := width; pad < lumaPitch; pad++ {
			luma[row*lumaPitch+pad] = 0xEE
		}
	}

	chroma := make([]byte, chromaPitch*chromaRows)
	base := width * height
	for row := 0; row < chromaRows; row++ {
		copy(chroma[row*chromaPitch:], packed[base+row*chromaRow:base+(row+1)*chromaRow])
		for pad := chromaRow; pad < chromaPitch; pad++ {
			chroma[row*chromaPitch+pad] = 0xEE
		}
	}

	return &fakeSurface{
		params: SurfaceParams{
			Width:  uint32(width),
			Height: uint32(height),
			Planes: []PlaneParams{
				{Pitch: uint32(lumaPitch), Size: uint32(len(luma))},
				{Pitch: uint32(chromaPitch), Size: uint32(len(chroma))},
			},
		},
		planes: [][]byte{luma, chroma},
	}
}

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type countingObserver struct {
	mutex     sync.Mutex
	forwarded map[string]int
	dropped   map[string]int
	failed    map[string]int
	syncs     int
	codecs    []string
	regressed []string
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		forwarded: make(map[string]int),
		dropped:   make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (o *countingObserver) FrameForwarded(route string, _ int) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.forwarded[route]++
}

func (o *countingObserver) FrameDropped(route string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.dropped[route]++
}

func (o *countingObserver) FrameFailed(route string, kind string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.failed[fmt.Sprintf("%s/%s", route, kind)]++
}

func (o *countingObserver) DeviceSynced(time.Duration) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.syncs++
}

func (o *countingObserver) CodecAnnounced(codec string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.codecs = append(o.codecs, codec)
}

func (o *countingObserver) ClockRegressed(entityPath string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.regressed = append(o.regressed, entityPath)
}

var errInjected = errors.New("injected failure")
