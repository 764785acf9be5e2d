package playback

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zhouzirui/emi-live/backend/internal/audio"
)

type playedItem struct {
	at  time.Duration
	dur time.Duration
}

// fakeOutput 手动推进的输出时钟，Advance 时按结束时间触发完成回调。
type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	played  []playedItem
	pending []pendingDone
	closed  bool
}

type pendingDone struct {
	end  time.Duration
	done func()
}

func (f *fakeOutput) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeOutput) Schedule(samples []float32, at time.Duration, done func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dur := SamplesDuration(len(samples), audio.OutputSampleRate)
	f.played = append(f.played, playedItem{at: at, dur: dur})
	f.pending = append(f.pending, pendingDone{end: at + dur, done: done})
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Advance 把时钟推进到 t，途中依次触发到期的完成回调。
func (f *fakeOutput) Advance(t time.Duration) {
	for {
		f.mu.Lock()
		sort.Slice(f.pending, func(i, j int) bool { return f.pending[i].end < f.pending[j].end })
		if len(f.pending) == 0 || f.pending[0].end > t {
			f.now = t
			f.mu.Unlock()
			return
		}
		next := f.pending[0]
		f.pending = f.pending[1:]
		f.now = next.end
		f.mu.Unlock()
		next.done()
	}
}

func (f *fakeOutput) Played() []playedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playedItem(nil), f.played...)
}

func pcmOf(d time.Duration) []byte {
	n := int(d * audio.OutputSampleRate / time.Second)
	return make([]byte, n*audio.BytesPerSample)
}

func TestSchedulerChunksPlayBackToBack(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Enqueue(pcmOf(500*time.Millisecond)))
	out.Advance(200 * time.Millisecond)
	require.NoError(t, s.Enqueue(pcmOf(500*time.Millisecond)))
	out.Advance(2 * time.Second)

	played := out.Played()
	require.Len(t, played, 2)
	assert.Equal(t, time.Duration(0), played[0].at)
	assert.Equal(t, 500*time.Millisecond, played[1].at)
	assert.Equal(t, time.Second, played[1].at+played[1].dur)
	assert.False(t, s.Playing())
}

func TestSchedulerResumesAfterIdle(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Enqueue(pcmOf(100*time.Millisecond)))
	out.Advance(time.Second)
	assert.False(t, s.Playing())

	require.NoError(t, s.Enqueue(pcmOf(100*time.Millisecond)))
	played := out.Played()
	require.Len(t, played, 2)
	assert.Equal(t, time.Second, played[1].at, "idle scheduler starts at the current clock")
}

func TestSchedulerClearAbandonsQueue(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(pcmOf(100*time.Millisecond)))
	}
	assert.Equal(t, 2, s.Pending())

	s.Clear()
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.Playing())

	out.Advance(time.Second)
	assert.Len(t, out.Played(), 1, "nothing new is scheduled after clear")

	require.NoError(t, s.Enqueue(pcmOf(100*time.Millisecond)))
	assert.Len(t, out.Played(), 2)
}

func TestSchedulerClearDoesNotOverlapAbandonedBuffer(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Enqueue(pcmOf(300*time.Millisecond)))
	require.NoError(t, s.Enqueue(pcmOf(300*time.Millisecond)))
	out.Advance(100 * time.Millisecond)

	s.Clear()
	require.NoError(t, s.Enqueue(pcmOf(100*time.Millisecond)))

	played := out.Played()
	require.Len(t, played, 2)
	abandonedEnd := played[0].at + played[0].dur
	assert.GreaterOrEqual(t, played[1].at, abandonedEnd, "new audio must start after the abandoned buffer ends")
	assert.Equal(t, 300*time.Millisecond, played[1].at)

	out.Advance(time.Second)
	assert.False(t, s.Playing())
}

func TestSchedulerDurationsUseModelOutputRate(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Enqueue(make([]byte, audio.OutputSampleRate*audio.BytesPerSample)))
	require.NoError(t, s.Enqueue(pcmOf(10*time.Millisecond)))
	out.Advance(2 * time.Second)

	played := out.Played()
	require.Len(t, played, 2)
	assert.Equal(t, time.Second, played[0].dur)
	assert.Equal(t, time.Second, played[1].at)
}

func TestSchedulerCloseRejectsEnqueue(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, out.closed)
	assert.ErrorIs(t, s.Enqueue(pcmOf(10*time.Millisecond)), ErrClosed)
}

func TestSchedulerRejectsBadPayloads(t *testing.T) {
	s := NewScheduler(&fakeOutput{})
	assert.Error(t, s.Enqueue([]byte{1}))
	assert.Error(t, s.EnqueueBase64("%%%"))
	assert.NoError(t, s.Enqueue(nil))
}

func TestSchedulerGaplessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		out := &fakeOutput{}
		s := NewScheduler(out)

		n := rapid.IntRange(1, 20).Draw(rt, "chunks")
		clock := time.Duration(0)
		for i := 0; i < n; i++ {
			clock += time.Duration(rapid.IntRange(0, 400).Draw(rt, "gapMs")) * time.Millisecond
			out.Advance(clock)
			size := rapid.IntRange(1, 600).Draw(rt, "chunkMs")
			if err := s.Enqueue(pcmOf(time.Duration(size) * time.Millisecond)); err != nil {
				rt.Fatalf("enqueue: %v", err)
			}
		}
		out.Advance(clock + time.Hour)

		played := out.Played()
		if len(played) != n {
			rt.Fatalf("played %d of %d", len(played), n)
		}
		for i := 1; i < len(played); i++ {
			prevEnd := played[i-1].at + played[i-1].dur
			if played[i].at < prevEnd {
				rt.Fatalf("item %d overlaps: start %v < prev end %v", i, played[i].at, prevEnd)
			}
		}
	})
}

func TestClockOutputCompletes(t *testing.T) {
	out := NewClockOutput(audio.OutputSampleRate)
	done := make(chan struct{})
	out.Schedule(make([]float32, 240), out.Now(), func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock output never completed")
	}
}

func TestClockOutputCloseSuppressesCallbacks(t *testing.T) {
	out := NewClockOutput(audio.OutputSampleRate)
	fired := make(chan struct{}, 1)
	out.Schedule(make([]float32, 2400), out.Now(), func() { fired <- struct{}{} })
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	select {
	case <-fired:
		t.Fatal("callback fired after close")
	case <-time.After(200 * time.Millisecond):
	}
}
