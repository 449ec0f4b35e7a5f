package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

var (
	ErrEmptyToken  = errors.New("refusing to store an empty token")
	ErrCorruptFile = errors.New("session file is not a JSON object")
)

// FileStore persists the token in a small JSON object on disk.
// Keys it does not own are kept as they are.
type FileStore struct {
	filePath string
	logger   *zap.Logger
	mu       sync.Mutex
}

func NewFileStore(filePath string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{
		filePath: filePath,
		logger:   logger.With(zap.String("component", "session_store"), zap.String("path", filePath)),
	}, nil
}

func (fs *FileStore) Path() string {
	return fs.filePath
}

func (fs *FileStore) Save(sess domain.Session) error {
	if sess.IsZero() {
		return ErrEmptyToken
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := fs.read()
	if errors.Is(err, ErrCorruptFile) {
		fs.logger.Warn("overwriting unreadable session file", zap.Error(err))
		data = make(map[string]json.RawMessage)
	} else if err != nil {
		return err
	}
	token, err := json.Marshal(sess.Token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	data[TokenKey] = token
	return fs.write(data)
}

func (fs *FileStore) Load() (domain.Session, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := fs.read()
	if err != nil {
		return domain.Session{}, false, err
	}
	raw, ok := data[TokenKey]
	if !ok {
		return domain.Session{}, false, nil
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return domain.Session{}, false, fmt.Errorf("failed to decode %s: %w", TokenKey, err)
	}
	if token == "" {
		return domain.Session{}, false, nil
	}
	return domain.Session{Token: token}, true, nil
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := fs.read()
	if errors.Is(err, ErrCorruptFile) {
		fs.logger.Warn("removing unreadable session file", zap.Error(err))
		return fs.remove()
	}
	if err != nil {
		return err
	}
	if _, ok := data[TokenKey]; !ok {
		return nil
	}
	delete(data, TokenKey)
	if len(data) == 0 {
		return fs.remove()
	}
	return fs.write(data)
}

func (fs *FileStore) remove() error {
	if err := os.Remove(fs.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (fs *FileStore) read() (map[string]json.RawMessage, error) {
	data := make(map[string]json.RawMessage)

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}
	if info.Size() == 0 {
		return data, nil
	}

	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return data, nil
}

// write replaces the file atomically: the new contents are synced to a
// temporary file in the same directory before being renamed over the old one.
func (fs *FileStore) write(data map[string]json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp session file: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp session file: %w", err)
	}

	if err := os.Rename(tmpPath, fs.filePath); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
