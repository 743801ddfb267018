package filedb_test

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vmledger/pkg/filedb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFiledb(t *testing.T) *filedb.Filedb {
	fdb, err := filedb.New(filepath.Join(t.TempDir(), "filedb", "test.log"))
	require.Nil(t, err)
	t.Cleanup(func() { fdb.Close() })
	return fdb
}

func TestNew(t *testing.T) {
	fdb := newFiledb(t)

	s, err := fdb.ReadLastLine()
	require.Nil(t, err)
	assert.Equal(t, "", s)

	_, err = fdb.ReadFirstLine()
	assert.Equal(t, io.EOF, err)

	txt := "{this a hi}"
	require.Nil(t, fdb.WriteLine(txt))

	s, err = fdb.ReadLastLine()
	require.Nil(t, err)
	assert.Equal(t, txt, s)
}

func TestReadFirstAndLastLine(t *testing.T) {
	fdb := newFiledb(t)
	for i := 0; i < 10; i++ {
		require.Nil(t, fdb.WriteLine(fmt.Sprintf("line %d\n", i)))
	}

	first, err := fdb.ReadFirstLine()
	require.Nil(t, err)
	assert.Equal(t, "line 0", first)

	last, err := fdb.ReadLastLine()
	require.Nil(t, err)
	assert.Equal(t, "line 9", last)
}

func TestReadLastLineLongerThanWindow(t *testing.T) {
	fdb := newFiledb(t)
	long := strings.Repeat("x", 5000)
	require.Nil(t, fdb.WriteLine("short"))
	require.Nil(t, fdb.WriteLine(long))

	last, err := fdb.ReadLastLine()
	require.Nil(t, err)
	assert.Equal(t, long, last)
}

func TestClosed(t *testing.T) {
	fdb := newFiledb(t)
	require.Nil(t, fdb.Close())
	assert.Equal(t, filedb.ErrClosed, fdb.WriteLine("x"))
	_, err := fdb.ReadLastLine()
	assert.Equal(t, filedb.ErrClosed, err)

	require.Nil(t, fdb.Open())
	require.Nil(t, fdb.WriteLine("again"))
}

func TestScan(t *testing.T) {
	fdb := newFiledb(t)
	for i := 1; i <= 3; i++ {
		require.Nil(t, fdb.WriteLine(fmt.Sprintf(`{"logID":%d}`, i)))
	}

	var got []string
	require.Nil(t, fdb.Scan(func(s string) error {
		got = append(got, s)
		return nil
	}))
	assert.Equal(t, []string{`{"logID":1}`, `{"logID":2}`, `{"logID":3}`}, got)

	stop := fmt.Errorf("stop")
	n := 0
	err := fdb.Scan(func(s string) error {
		n++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, n)
}

func TestTailf(t *testing.T) {
	fdb := newFiledb(t)
	require.Nil(t, fdb.WriteLine("before 0"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan string, 64)
	done := make(chan error, 1)
	go func() {
		done <- fdb.Tailf(ctx, ch)
	}()

	for i := 1; i < 20; i++ {
		require.Nil(t, fdb.WriteLine(fmt.Sprintf("after %d", i)))
	}

	assert.Equal(t, "before 0", recv(t, ch))
	for i := 1; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("after %d", i), recv(t, ch))
	}

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Tailf did not stop")
	}
}

func recv(t *testing.T, ch <-chan string) string {
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for line")
		return ""
	}
}

func TestDrain(t *testing.T) {
	fdb := newFiledb(t)

	var batches [][]string
	fdb.Handler = func(ss []string) error {
		batches = append(batches, append([]string(nil), ss...))
		return nil
	}

	ch := make(chan string, 300)
	for i := 0; i < 250; i++ {
		ch <- fmt.Sprint(i)
	}
	close(ch)

	require.Nil(t, fdb.Drain(ch))

	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 100)
		total += len(b)
	}
	assert.Equal(t, 250, total)
	assert.Equal(t, "0", batches[0][0])
	last := batches[len(batches)-1]
	assert.Equal(t, "249", last[len(last)-1])
}

func TestDrainStopsOnHandlerError(t *testing.T) {
	fdb := newFiledb(t)
	boom := fmt.Errorf("boom")
	fdb.Handler = func(ss []string) error { return boom }

	ch := make(chan string, 1)
	ch <- "x"
	assert.Equal(t, boom, fdb.Drain(ch))
}

func BenchmarkWrite(b *testing.B) {
	fdb, err := filedb.New(filepath.Join(b.TempDir(), "bench.log"))
	require.Nil(b, err)
	line := strings.Repeat("vFFDUPCTQVYuzFEhgjxPmHnwLxswVNPjOSNbMk6zDA3q", 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fdb.WriteLine(line)
	}
}
