package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister keeps a channel's processed keys as a JSON list on local
// disk, oldest first. Every change rewrites the file through a temp file and
// a rename so a crash never leaves it half written.
type FilePersister struct {
	mu   sync.Mutex
	dir  string
	path string
	keys []string
}

func NewFilePersister(dir, channel string) (*FilePersister, error) {
	if channel == "" || !filepath.IsLocal(channel) {
		return nil, fmt.Errorf("invalid dedup channel name %q", channel)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dedup dir: %w", err)
	}
	return &FilePersister{
		dir:  dir,
		path: filepath.Join(dir, channel+"_processed.json"),
	}, nil
}

func (p *FilePersister) Load(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.keys = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	p.keys = keys
	out := make([]string, len(keys))
	copy(out, keys)
	return out, nil
}

func (p *FilePersister) Append(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, key)
	return p.write()
}

func (p *FilePersister) Trim(ctx context.Context, retain int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if retain < 0 {
		retain = 0
	}
	if len(p.keys) <= retain {
		return nil
	}
	p.keys = append([]string(nil), p.keys[len(p.keys)-retain:]...)
	return p.write()
}

func (p *FilePersister) write() error {
	data, err := json.Marshal(p.keys)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.dir, "dedup-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("replace %s: %w", p.path, err)
	}
	cleanup = false
	return nil
}
