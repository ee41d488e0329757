package snapshot

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
)

// maxRetained is "enforces retention (30 newest)" (§4.9).
const maxRetained = 30

const indexFileName = "index.json"

// store owns the on-disk index.json and per-snapshot .rsc files under
// <dataDir>/snapshots/<deviceID>/{index.json,<id>.rsc}.
type store struct {
	mu  sync.Mutex
	dir string
}

func newStore(dir string) *store {
	return &store{dir: dir}
}

func (s *store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *store) bodyPath(id string) string {
	return filepath.Join(s.dir, id+".rsc")
}

func (s *store) loadIndex() ([]models.ConfigSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked()
}

func (s *store) loadIndexLocked() ([]models.ConfigSnapshot, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "snapshot.loadIndex", "reading index file", err)
	}
	var snaps []models.ConfigSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, apperr.Wrap(apperr.IO, "snapshot.loadIndex", "corrupt index file", err)
	}
	return snaps, nil
}

func (s *store) saveIndexLocked(snaps []models.ConfigSnapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "snapshot.saveIndex", "creating snapshot dir", err)
	}
	data, err := json.Marshal(snaps)
	if err != nil {
		return apperr.Wrap(apperr.IO, "snapshot.saveIndex", "marshaling index", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "snapshot.saveIndex", "writing index file", err)
	}
	return nil
}

// save writes body to <id>.rsc, appends the entry to the index, and
// prunes to the 30 newest (§4.9 retention), deleting evicted bodies.
func (s *store) save(entry models.ConfigSnapshot, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "snapshot.save", "creating snapshot dir", err)
	}
	if err := os.WriteFile(s.bodyPath(entry.ID), []byte(body), 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "snapshot.save", "writing snapshot body", err)
	}

	snaps, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	snaps = append(snaps, entry)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Timestamp > snaps[j].Timestamp })

	var evicted []models.ConfigSnapshot
	if len(snaps) > maxRetained {
		evicted = snaps[maxRetained:]
		snaps = snaps[:maxRetained]
	}

	if err := s.saveIndexLocked(snaps); err != nil {
		return err
	}
	for _, e := range evicted {
		_ = os.Remove(s.bodyPath(e.ID))
	}
	return nil
}

func (s *store) loadBody(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.bodyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.New(apperr.NotFound, "snapshot.loadBody", "snapshot not found: "+id)
		}
		return "", apperr.Wrap(apperr.IO, "snapshot.loadBody", "reading snapshot body", err)
	}
	return string(data), nil
}

// mostRecent returns the newest indexed snapshot, if any.
func (s *store) mostRecent() (models.ConfigSnapshot, bool, error) {
	snaps, err := s.loadIndex()
	if err != nil {
		return models.ConfigSnapshot{}, false, err
	}
	if len(snaps) == 0 {
		return models.ConfigSnapshot{}, false, nil
	}
	newest := snaps[0]
	for _, s := range snaps[1:] {
		if s.Timestamp > newest.Timestamp {
			newest = s
		}
	}
	return newest, true, nil
}

func checksum(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}
