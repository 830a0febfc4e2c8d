package att

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareQueueContiguousCommits(t *testing.T) {
	var q prepareQueue
	require.Equal(t, ecodeSuccess, q.push(5, 0, []byte("hello")))
	require.Equal(t, ecodeSuccess, q.push(5, 5, []byte("world")))

	handle, code := q.validate()
	assert.Equal(t, ecodeSuccess, code)
	assert.Equal(t, uint16(0), handle)

	run := q.runFor(5)
	assert.Equal(t, []byte("helloworld"), assembleRun(run))
}

func TestPrepareQueueGapRejected(t *testing.T) {
	var q prepareQueue
	q.push(5, 0, []byte("hello"))
	q.push(5, 6, []byte("world")) // gap: should have been offset 5

	handle, code := q.validate()
	assert.Equal(t, ecodeInvalidOffset, code)
	assert.Equal(t, uint16(5), handle)
}

func TestPrepareQueueNonZeroFirstOffsetRejected(t *testing.T) {
	var q prepareQueue
	q.push(5, 3, []byte("abc"))

	_, code := q.validate()
	assert.Equal(t, ecodeInvalidOffset, code)
}

func TestPrepareQueueOverlongValueRejected(t *testing.T) {
	var q prepareQueue
	big := make([]byte, maxAttrValueLen)
	q.push(5, 0, big)
	q.push(5, uint16(len(big)), []byte("x"))

	_, code := q.validate()
	assert.Equal(t, ecodeInvalAttrValueLen, code)
}

func TestPrepareQueueFull(t *testing.T) {
	var q prepareQueue
	big := make([]byte, maxPrepareQueueLen)
	assert.Equal(t, ecodeSuccess, q.push(1, 0, big))
	assert.Equal(t, ecodePrepQueueFull, q.push(2, 0, []byte("x")))
}

func TestPrepareQueueMultipleHandlesIndependent(t *testing.T) {
	var q prepareQueue
	q.push(5, 0, []byte("aa"))
	q.push(9, 0, []byte("bb"))
	q.push(5, 2, []byte("cc"))

	_, code := q.validate()
	require.Equal(t, ecodeSuccess, code)

	assert.Equal(t, []uint16{5, 9}, q.handles())
	assert.Equal(t, []byte("aacc"), assembleRun(q.runFor(5)))
	assert.Equal(t, []byte("bb"), assembleRun(q.runFor(9)))
}

func TestPrepareQueueClear(t *testing.T) {
	var q prepareQueue
	q.push(5, 0, []byte("hello"))
	q.clear()
	assert.Equal(t, 0, q.totalLen)
	assert.Nil(t, q.runFor(5))
}
