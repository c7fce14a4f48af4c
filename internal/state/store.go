package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ErrPersistence marks every store failure. None of them is fatal: callers
// keep their current state and carry on.
var ErrPersistence = errors.New("persisted state unavailable")

type codec struct {
	name      string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{name: "json", marshal: json.Marshal, unmarshal: json.Unmarshal}
	yamlCodec = codec{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
)

func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec
	}
	return jsonCodec
}

// Store persists a Lighting record as one flat mapping at a fixed path. The
// encoding follows the file extension: .yaml/.yml is YAML, anything else JSON.
type Store struct {
	path  string
	codec codec
}

func NewStore(path string) *Store {
	return &Store{path: path, codec: codecFor(path)}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the record and applies it over Defaults through the field
// allow-list. Fields missing from the record keep their default.
func (s *Store) Load() (Lighting, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Lighting{}, errors.Wrapf(ErrPersistence, "read %s: %v", s.path, err)
	}

	record := map[string]any{}
	if err := s.codec.unmarshal(data, &record); err != nil {
		return Lighting{}, errors.Wrapf(ErrPersistence, "decode %s as %s: %v", s.path, s.codec.name, err)
	}
	if len(record) == 0 {
		return Lighting{}, errors.Wrapf(ErrPersistence, "%s holds no fields", s.path)
	}

	l := Defaults()
	if errs := ApplyFields(&l, record); len(errs) > 0 {
		return Lighting{}, errors.Wrapf(ErrPersistence, "%s: %d invalid field(s), first: %v", s.path, len(errs), errs[0])
	}
	if err := l.Validate(); err != nil {
		return Lighting{}, errors.Wrapf(ErrPersistence, "%s: %v", s.path, err)
	}
	return l, nil
}

// Save writes every field of l. The write goes to a temporary file that is
// renamed over the record, so a failed save leaves the previous record intact.
func (s *Store) Save(l Lighting) error {
	data, err := s.codec.marshal(l)
	if err != nil {
		return errors.Wrapf(ErrPersistence, "encode: %v", err)
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "create temp for %s: %v", s.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "write %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "rename to %s: %v", s.path, err)
	}
	return nil
}
