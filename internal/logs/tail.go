package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	maxLineBytes = 1024 * 1024
	// pollInterval backs up fsnotify for filesystems that drop events.
	pollInterval = 2 * time.Second
)

// Last returns up to limit trailing lines of path and the offset just past
// them. A missing file yields no lines and offset zero.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	scanner := newScanner(file)
	ring := make([]string, limit)
	count, idx := 0, 0
	var offset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		offset += int64(len(line)) + 1
		ring[idx] = string(line)
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	if offset > info.Size() {
		offset = info.Size()
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = idx
	}
	for i := range count {
		lines[i] = ring[(start+i)%limit]
	}
	return lines, offset, nil
}

// Follow emits every complete line appended to path after offset until ctx is
// done. When the file is replaced or truncated, reading restarts at the top of
// the new file.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory so rotation, which renames the file, keeps firing.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	cur := cursor{offset: offset}
	if info, err := os.Stat(path); err == nil {
		cur.info = info
	}
	for {
		cur, err = readFrom(path, cur, emit)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher: %w", err)
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
		case <-ticker.C:
		}
	}
}

// cursor is a read position within one specific file.
type cursor struct {
	info   os.FileInfo
	offset int64
}

// readFrom emits complete lines after cur and returns the position of the
// first unconsumed byte. A trailing partial line is left for the next call.
func readFrom(path string, cur cursor, emit func(string)) (cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cursor{}, nil
		}
		return cur, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return cur, fmt.Errorf("stat log file: %w", err)
	}
	offset := cur.offset
	if (cur.info != nil && !os.SameFile(cur.info, info)) || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return cur, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return cursor{info: info, offset: offset}, nil
			}
			return cursor{info: info, offset: offset}, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		emit(line[:len(line)-1])
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
