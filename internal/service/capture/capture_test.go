package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
	"github.com/zhouzirui/emi-live/backend/internal/model/live"
)

type fakeStream struct {
	blocks chan []float32
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{blocks: make(chan []float32, 8), closed: make(chan struct{})}
}

func (s *fakeStream) Read() ([]float32, error) {
	select {
	case b := <-s.blocks:
		return b, nil
	case <-s.closed:
		return nil, errors.New("stream closed")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
	rate   int
}

func (f *fakeSource) Open(_ context.Context, sampleRate int) (AudioStream, error) {
	f.rate = sampleRate
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []live.MediaChunk
}

func (r *chunkRecorder) sink(c live.MediaChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

func (r *chunkRecorder) all() []live.MediaChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]live.MediaChunk(nil), r.chunks...)
}

func TestAudioCaptureEmitsChunksInOrder(t *testing.T) {
	stream := newFakeStream()
	source := &fakeSource{stream: stream}
	rec := &chunkRecorder{}
	var lastLevel atomic.Value

	c, err := StartAudio(context.Background(), source, rec.sink, func(l float64) { lastLevel.Store(l) }, nil)
	require.NoError(t, err)
	assert.Equal(t, audio.InputSampleRate, source.rate)

	stream.blocks <- []float32{0.5}
	stream.blocks <- []float32{-0.5, -0.5}
	stream.blocks <- []float32{0.25, 0.25, 0.25}

	require.Eventually(t, func() bool { return len(rec.all()) == 3 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()

	chunks := rec.all()
	for i, chunk := range chunks {
		assert.Equal(t, live.MIMEAudioPCM, chunk.MIMEType)
		raw, err := base64.StdEncoding.DecodeString(chunk.Data)
		require.NoError(t, err)
		assert.Len(t, raw, (i+1)*audio.BytesPerSample, "chunk %d keeps capture order", i)
	}
	assert.InDelta(t, 25.0, lastLevel.Load().(float64), 1e-6)
}

func TestAudioCaptureDeviceFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("permission denied")}
	c, err := StartAudio(context.Background(), source, func(live.MediaChunk) {}, nil, nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAudioCaptureStopsOnStreamError(t *testing.T) {
	stream := newFakeStream()
	c, err := StartAudio(context.Background(), &fakeSource{stream: stream}, func(live.MediaChunk) {}, nil, nil)
	require.NoError(t, err)

	_ = stream.Close()
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after stream error")
	}
}

type fakeFrames struct {
	ready atomic.Bool
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeFrames) Ready() bool { return f.ready.Load() }

func (f *fakeFrames) Frame() (image.Image, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 255, A: 255})
	}
	return img, nil
}

func TestEncodeFrameHalvesResolution(t *testing.T) {
	frames := &fakeFrames{}
	img, _ := frames.Frame()

	data, err := EncodeFrame(img)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
	assert.Equal(t, 24, decoded.Bounds().Dy())
}

func TestEncodeFrameTinyImage(t *testing.T) {
	data, err := EncodeFrame(image.NewGray(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestVideoCaptureSkipsWhenNotReady(t *testing.T) {
	frames := &fakeFrames{}
	rec := &chunkRecorder{}

	c := StartVideo(frames, rec.sink, 10*time.Millisecond, nil, nil)
	time.Sleep(60 * time.Millisecond)
	c.Stop()

	assert.Empty(t, rec.all())
	assert.Equal(t, int32(0), frames.calls.Load())
}

func TestVideoCaptureDropsOverlappingTicks(t *testing.T) {
	frames := &fakeFrames{delay: 80 * time.Millisecond}
	frames.ready.Store(true)
	rec := &chunkRecorder{}

	c := StartVideo(frames, rec.sink, 10*time.Millisecond, nil, nil)
	time.Sleep(200 * time.Millisecond)
	c.Stop()
	c.Stop()

	calls := frames.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(3), "ticks during an in-flight frame are dropped")
	for _, chunk := range rec.all() {
		assert.Equal(t, live.MIMEImageJPEG, chunk.MIMEType)
	}
}
