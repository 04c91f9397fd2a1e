package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"xmlbar/internal/xmlstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(n int) <-chan *xmlstream.Fragment {
	ch := make(chan *xmlstream.Fragment)
	go func() {
		defer close(ch)
		for i := 1; i <= n; i++ {
			ch <- xmlstream.NewFragment(i, []byte(fmt.Sprintf("<r>%d</r>", i)))
		}
	}()
	return ch
}

func echo() (WorkFunc, error) {
	return func(f *xmlstream.Fragment) (string, error) {
		return string(f.Bytes), nil
	}, nil
}

func collect(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var out []Result
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func indexes(rs []Result) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Index
	}
	return out
}

// TestPool_SequentialKeepsOrder verifies a non-parallel pool returns results
// in document order, every time.
func TestPool_SequentialKeepsOrder(t *testing.T) {
	t.Parallel()

	for run := 0; run < 2; run++ {
		p := New(Config{Parallel: false, Workers: 8, ChunkSize: 3}, echo, nil)
		assert.Equal(t, 1, p.Workers())

		ch, err := p.Run(context.Background(), feed(50))
		require.NoError(t, err)
		got := collect(t, ch)

		require.Len(t, got, 50)
		for i, r := range got {
			assert.Equal(t, i+1, r.Index)
			assert.Equal(t, fmt.Sprintf("<r>%d</r>", i+1), r.Text)
		}
	}
}

// TestPool_ParallelSameMultiset verifies parallel runs produce the same set of
// results as sequential ones.
func TestPool_ParallelSameMultiset(t *testing.T) {
	t.Parallel()

	p := New(Config{Parallel: true, Workers: 4, ChunkSize: 2}, echo, nil)
	ch, err := p.Run(context.Background(), feed(101))
	require.NoError(t, err)
	got := collect(t, ch)

	texts := make([]string, 0, len(got))
	for _, r := range got {
		texts = append(texts, r.Text)
	}
	sort.Strings(texts)

	var want []string
	for i := 1; i <= 101; i++ {
		want = append(want, fmt.Sprintf("<r>%d</r>", i))
	}
	sort.Strings(want)
	assert.Equal(t, want, texts)
}

// slowFirst delays record 1 so later records overtake it.
func slowFirst() (WorkFunc, error) {
	return func(f *xmlstream.Fragment) (string, error) {
		if f.Index == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		return string(f.Bytes), nil
	}, nil
}

// TestPool_CompletionOrder verifies results are yielded as they complete, not
// as they were submitted.
func TestPool_CompletionOrder(t *testing.T) {
	t.Parallel()

	p := New(Config{Parallel: true, Workers: 4, ChunkSize: 1}, slowFirst, nil)
	ch, err := p.Run(context.Background(), feed(8))
	require.NoError(t, err)
	got := indexes(collect(t, ch))

	require.Len(t, got, 8)
	assert.NotEqual(t, 1, got[0], "record 1 was delayed and must not arrive first")
	assert.Equal(t, 1, got[len(got)-1])
}

// TestPool_OrderedRestoresOrder verifies --ordered undoes the shuffle.
func TestPool_OrderedRestoresOrder(t *testing.T) {
	t.Parallel()

	p := New(Config{Parallel: true, Workers: 4, ChunkSize: 1, Ordered: true}, slowFirst, nil)
	ch, err := p.Run(context.Background(), feed(20))
	require.NoError(t, err)

	want := make([]int, 20)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, indexes(collect(t, ch)))
}

// TestPool_ErrorsAndPanicsBecomeResults verifies worker failures are wrapped
// per record and never stop the other records.
func TestPool_ErrorsAndPanicsBecomeResults(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	work := func() (WorkFunc, error) {
		return func(f *xmlstream.Fragment) (string, error) {
			switch f.Index {
			case 2:
				return "", boom
			case 3:
				panic("kaboom")
			}
			return "ok", nil
		}, nil
	}

	p := New(Config{Parallel: false}, work, nil)
	ch, err := p.Run(context.Background(), feed(4))
	require.NoError(t, err)
	got := collect(t, ch)
	require.Len(t, got, 4)

	assert.Equal(t, "ok", got[0].Text)

	var re *RecordError
	require.True(t, errors.As(got[1].Err, &re))
	assert.Equal(t, 2, re.Index)
	assert.ErrorIs(t, got[1].Err, boom)

	require.Error(t, got[2].Err)
	assert.Contains(t, got[2].Err.Error(), "kaboom")

	assert.Equal(t, "ok", got[3].Text)
	assert.False(t, got[3].Empty())
}

// TestPool_CancelStillDrainsInput verifies the producer side never blocks
// after cancellation: the input is drained and the result channel closes.
func TestPool_CancelStillDrainsInput(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{Parallel: true, Workers: 2, ChunkSize: 1}, echo, nil)

	in := make(chan *xmlstream.Fragment)
	ch, err := p.Run(ctx, in)
	require.NoError(t, err)

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		defer close(in)
		for i := 1; i <= 1000; i++ {
			in <- xmlstream.NewFragment(i, []byte("<r/>"))
		}
	}()

	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	select {
	case <-fed:
	case <-time.After(5 * time.Second):
		t.Fatalf("producer blocked after cancel")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("result channel not closed after cancel")
	}
}

// TestPool_WorkerInitError surfaces factory failures before any work starts.
func TestPool_WorkerInitError(t *testing.T) {
	t.Parallel()

	p := New(Config{Parallel: true, Workers: 2}, func() (WorkFunc, error) {
		return nil, errors.New("no template")
	}, nil)
	_, err := p.Run(context.Background(), feed(0))
	require.Error(t, err)
}

// TestUnshuffle_FlushesGaps releases held results in order when input ends
// with a gap.
func TestUnshuffle_FlushesGaps(t *testing.T) {
	t.Parallel()

	in := make(chan Result, 4)
	in <- Result{Index: 3}
	in <- Result{Index: 1}
	in <- Result{Index: 5}
	close(in)

	assert.Equal(t, []int{1, 3, 5}, indexes(collect(t, Unshuffle(context.Background(), in, 1))))
}

// TestDefaults returns sane sizes on any host.
func TestDefaults(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	assert.GreaterOrEqual(t, DefaultQueueDepth(), 32)
}
