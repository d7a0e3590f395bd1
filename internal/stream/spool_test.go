package stream

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextMessage(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription ended: %v", sub.Err())
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for spool message")
		return Message{}
	}
}

func TestSpoolTransport_DeliversBacklogThenNewFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Enqueue(dir, []byte(`{"id":"backlog"}`))
	require.NoError(t, err)

	transport := &SpoolTransport{Dir: dir}
	sub, err := transport.Subscribe(context.Background(), "spool")
	require.NoError(t, err)
	defer sub.Close()

	first := nextMessage(t, sub)
	assert.JSONEq(t, `{"id":"backlog"}`, string(first.Body))
	assert.Equal(t, "spool", first.Topic)

	_, err = Enqueue(dir, []byte(`{"id":"live"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"live"}`, string(nextMessage(t, sub).Body))

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(dir)
		return len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpoolTransport_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte(`{}`), 0o644))

	msgs, err := Drain(dir, "t")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDrainReturnsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"id":"b"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"id":"a"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), nil, 0o644))

	msgs, err := Drain(dir, "t")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"id":"a"}`, string(msgs[0].Body))
	assert.Equal(t, `{"id":"b"}`, string(msgs[1].Body))

	again, err := Drain(dir, "t")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDrainMissingDirectory(t *testing.T) {
	msgs, err := Drain(filepath.Join(t.TempDir(), "absent"), "t")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSpoolTransportRequiresDir(t *testing.T) {
	_, err := (&SpoolTransport{}).Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestKafkaTransportRequiresBrokers(t *testing.T) {
	_, err := (&KafkaTransport{}).Subscribe(context.Background(), DefaultKafkaTopic)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSTOMPTransportRequiresTopic(t *testing.T) {
	_, err := (&STOMPTransport{}).Subscribe(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
