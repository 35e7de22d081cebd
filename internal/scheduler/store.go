package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/pkg/crypto"
)

// snapshot is the on-disk post list. With a sealer the file is encrypted;
// a plain file is still read so an existing snapshot can be migrated.
type snapshot struct {
	path   string
	sealer *crypto.Sealer
}

// load reads the post list. A missing file is an empty list.
func (f snapshot) load() ([]*domain.ScheduledPost, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scheduled posts: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	if crypto.IsSealed(data) {
		if f.sealer == nil {
			return nil, errors.New("scheduled posts snapshot is sealed but no snapshot key is configured")
		}
		if data, err = f.sealer.Open(data); err != nil {
			return nil, fmt.Errorf("unseal scheduled posts: %w", err)
		}
	}

	var posts []*domain.ScheduledPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode scheduled posts: %w", err)
	}
	return posts, nil
}

// save rewrites the whole snapshot. The file is replaced by rename so a
// crash mid-write leaves the previous snapshot intact.
func (f snapshot) save(posts []*domain.ScheduledPost) error {
	if f.path == "" {
		return nil
	}
	if posts == nil {
		posts = []*domain.ScheduledPost{}
	}

	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scheduled posts: %w", err)
	}
	if f.sealer != nil {
		if data, err = f.sealer.Seal(data); err != nil {
			return fmt.Errorf("seal scheduled posts: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create scheduled posts dir: %w", err)
	}

	// 0600: snapshots embed bot tokens
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write scheduled posts: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace scheduled posts: %w", err)
	}
	return nil
}
