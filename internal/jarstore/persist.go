package jarstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookie"
	"github.com/spf13/afero"
)

const documentVersion = 1

// document is the on-disk shape of one jar.
type document struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	Jar     cookie.Hosts `json:"jar"`
}

func (s *Store) jarPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// readJar loads the document for id. Both the versioned wrapper and the
// legacy bare {host: [...]} shape are accepted.
func (s *Store) readJar(id string) (cookie.Hosts, error) {
	data, err := afero.ReadFile(s.fs, s.jarPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read jar file: %w", err)
	}

	var probe map[string]json.RawMessage
	if err = json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode jar file: %w", err)
	}

	_, hasVersion := probe["version"]
	raw, hasJar := probe["jar"]
	if hasVersion && hasJar {
		var hosts cookie.Hosts
		if err = json.Unmarshal(raw, &hosts); err != nil {
			return nil, fmt.Errorf("failed to decode jar contents: %w", err)
		}
		return hosts, nil
	}

	var legacy cookie.Hosts
	if err = json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to decode legacy jar file: %w", err)
	}

	return legacy, nil
}

// writeJar persists hosts for id through a temporary sibling file and a rename,
// so readers only ever see the previous or the new document.
func (s *Store) writeJar(id string, hosts cookie.Hosts) error {
	if hosts == nil {
		hosts = cookie.Hosts{}
	}

	data, err := json.MarshalIndent(document{
		Version: documentVersion,
		SavedAt: s.now().UTC(),
		Jar:     hosts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode jar: %w", err)
	}

	if err = s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create jar directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+id+".json.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = s.fs.Rename(tmpPath, s.jarPath(id)); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename jar file: %w", err)
	}

	return nil
}

func (s *Store) removeJar(id string) error {
	if err := s.fs.Remove(s.jarPath(id)); err != nil {
		return fmt.Errorf("failed to remove jar file: %w", err)
	}
	return nil
}
