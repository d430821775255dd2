package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/persistence"
)

// Journal implements persistence.BatchJournal with one JSON document per
// request under <root>/journal/<owner>.
type Journal struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

var _ persistence.BatchJournal = (*Journal)(nil)

type journalEntry struct {
	AppendedAt time.Time                `json:"appended_at"`
	Request    events.DeliveryRequested `json:"request"`
}

// NewJournal creates a journal rooted at root. A "file://" prefix is accepted.
func NewJournal(root string) *Journal {
	return &Journal{
		root: filepath.Join(strings.Replace(root, "file://", "", 1), "journal"),
		now:  time.Now,
	}
}

func (j *Journal) Append(_ context.Context, owner string, request events.DeliveryRequested) error {
	if owner == "" {
		return persistence.ErrInvalidOwner
	}

	data, err := json.Marshal(journalEntry{AppendedAt: j.now().UTC(), Request: request})
	if err != nil {
		return fmt.Errorf("failed to encode request %s: %w", request.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	dir := j.dir(owner)

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to journal request %s: %w", request.ID, err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), j.path(owner, request.ID))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to journal request %s: %w", request.ID, err)
	}

	return nil
}

func (j *Journal) Remove(_ context.Context, owner string, ids []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error

	for _, id := range ids {
		err := os.Remove(j.path(owner, id))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (j *Journal) Pending(_ context.Context, owner string) ([]events.DeliveryRequested, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := os.ReadDir(j.dir(owner))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	entries := make([]journalEntry, 0, len(files))

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(j.dir(owner), f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read journal entry %s: %w", f.Name(), err)
		}

		var entry journalEntry

		err = json.Unmarshal(data, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to decode journal entry %s: %w", f.Name(), err)
		}

		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].AppendedAt.Equal(entries[b].AppendedAt) {
			return entries[a].Request.ID < entries[b].Request.ID
		}

		return entries[a].AppendedAt.Before(entries[b].AppendedAt)
	})

	out := make([]events.DeliveryRequested, len(entries))
	for i, entry := range entries {
		out[i] = entry.Request
	}

	return out, nil
}

func (j *Journal) Close(_ context.Context) error {
	return nil
}

func (j *Journal) dir(owner string) string {
	return filepath.Join(j.root, base64.RawURLEncoding.EncodeToString([]byte(owner)))
}

func (j *Journal) path(owner, id string) string {
	return filepath.Join(j.dir(owner), base64.RawURLEncoding.EncodeToString([]byte(id))+".json")
}
