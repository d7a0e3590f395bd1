package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
)

const (
	spoolSuffix        = ".json"
	defaultSpoolBuffer = 64
)

// SpoolTransport treats a directory as a topic: every *.json file dropped
// into it is one message. Files are removed once delivered. Producers should
// write under another name and rename into place; Enqueue does that.
type SpoolTransport struct {
	Dir    string
	Buffer int
}

func (t *SpoolTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: spool directory is required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	buffer := t.Buffer
	if buffer <= 0 {
		buffer = defaultSpoolBuffer
	}
	pipe := newPipeSubscription(buffer, watcher.Close)
	go pumpSpool(pipe, watcher, dir, topic)
	return pipe, nil
}

func pumpSpool(pipe *pipeSubscription, watcher *fsnotify.Watcher, dir, topic string) {
	// Files that arrived before the watch was armed.
	pending, err := spoolFiles(dir)
	if err != nil {
		pipe.finish(err)
		return
	}
	for _, path := range pending {
		if !deliverSpoolFile(pipe, path, topic) {
			pipe.finish(nil)
			return
		}
	}
	for {
		select {
		case <-pipe.stopped():
			pipe.finish(nil)
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				pipe.finish(nil)
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isSpoolFile(ev.Name) {
				continue
			}
			if !deliverSpoolFile(pipe, ev.Name, topic) {
				pipe.finish(nil)
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				pipe.finish(nil)
				return
			}
			pipe.finish(err)
			return
		}
	}
}

func deliverSpoolFile(pipe *pipeSubscription, path, topic string) bool {
	body, err := os.ReadFile(path)
	if err != nil || len(body) == 0 {
		// Already consumed, or still being written.
		return true
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true
	}
	return pipe.deliver(Message{Topic: topic, Body: body, ReceivedAt: time.Now()})
}

func isSpoolFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, spoolSuffix) && !strings.HasPrefix(name, ".")
}

func spoolFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Drain consumes every file currently in the spool directory, oldest name
// first, without watching for more.
func Drain(dir, topic string) ([]Message, error) {
	paths, err := spoolFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(paths))
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return out, err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return out, err
		}
		if len(body) == 0 {
			continue
		}
		out = append(out, Message{Topic: topic, Body: body, ReceivedAt: time.Now()})
	}
	return out, nil
}

// Enqueue writes body into the spool directory as a new message. Names are
// ULIDs so lexical order matches arrival order.
func Enqueue(dir string, body []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := ulid.Make().String() + spoolSuffix
	tmp, err := os.CreateTemp(dir, ".spool-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	cleanup = false
	return path, nil
}
