package progress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	done  int64
	total int64
}

func TestReader_TracksProgress(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")

	var events []event
	tracker := NewTracker(-1, func(done, total int64) {
		events = append(events, event{done, total})
	})
	pr := NewReader(bytes.NewReader(data), tracker)

	buf := make([]byte, 5)
	n, err := pr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, events, 1)
	assert.Equal(t, event{5, -1}, events[0])

	_, err = io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, int64(11), events[len(events)-1].done)
}

func TestTracker_CumulativeAcrossReaders(t *testing.T) {
	t.Parallel()

	var last int64
	tracker := NewTracker(8, func(done, total int64) {
		assert.Equal(t, int64(8), total)
		last = done
	})

	for _, s := range []string{"abc", "defgh"} {
		_, err := io.Copy(io.Discard, NewReader(bytes.NewReader([]byte(s)), tracker))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(8), last)
	assert.Equal(t, int64(8), tracker.Done())
}

func TestTracker_NilSafe(t *testing.T) {
	t.Parallel()

	var tracker *Tracker
	tracker.Add(10)
	assert.Zero(t, tracker.Done())

	pr := NewReader(bytes.NewReader([]byte("hello")), NewTracker(-1, nil))
	buf, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)
}

func TestReader_CloseClosesUnderlying(t *testing.T) {
	t.Parallel()

	closed := false
	r := &mockCloser{
		Reader: bytes.NewReader([]byte("test")),
		onClose: func() error {
			closed = true
			return nil
		},
	}

	pr := NewReader(r, nil)
	require.NoError(t, pr.Close())
	assert.True(t, closed)
}

func TestReader_CloseNonCloser(t *testing.T) {
	t.Parallel()

	pr := NewReader(bytes.NewReader([]byte("test")), nil)
	require.NoError(t, pr.Close())
}

type mockCloser struct {
	io.Reader
	onClose func() error
}

func (m *mockCloser) Close() error {
	return m.onClose()
}
