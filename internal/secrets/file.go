package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	fileFormatVersion = 1
	keyLength         = 32
	nonceLength       = 12
	saltLength        = 16

	defaultKDFTime    = 1
	defaultKDFMemory  = 64 * 1024
	defaultKDFThreads = 4
)

// KDF holds the argon2id cost parameters.
type KDF struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDF returns the argon2id parameters used when none are given.
func DefaultKDF() KDF {
	return KDF{Time: defaultKDFTime, Memory: defaultKDFMemory, Threads: defaultKDFThreads}
}

// FileStore keeps secrets in one encrypted file. The whole file is
// rewritten on every Store; a fresh salt and nonce are drawn each time.
type FileStore struct {
	path       string
	passphrase []byte
	kdf        KDF

	mu sync.Mutex
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithKDF overrides the argon2id parameters.
func WithKDF(k KDF) FileOption {
	return func(s *FileStore) {
		s.kdf = k
	}
}

type envelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type snapshot struct {
	Secrets map[string]string `json:"secrets"`
}

// NewFileStore returns a FileStore backed by path. The file is created on
// the first Store.
func NewFileStore(path, passphrase string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("secret store path must not be empty")
	}
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	s := &FileStore{
		path:       path,
		passphrase: []byte(passphrase),
		kdf:        DefaultKDF(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := snap.Secrets[key]
	return v, ok, nil
}

// Store implements Store.
func (s *FileStore) Store(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readLocked()
	if err != nil {
		return err
	}
	snap.Secrets[key] = value
	return s.writeLocked(snap)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := snap.Secrets[key]; !ok {
		return nil
	}
	delete(snap.Secrets, key)
	return s.writeLocked(snap)
}

// Keys returns the stored keys, sorted.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(snap.Secrets))
	for k := range snap.Secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) readLocked() (snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snapshot{Secrets: map[string]string{}}, nil
		}
		return snapshot{}, fmt.Errorf("read secret store: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if env.Version != fileFormatVersion {
		return snapshot{}, fmt.Errorf("%w: %d", ErrUnsupported, env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) != saltLength {
		return snapshot{}, fmt.Errorf("%w: bad salt", ErrStoreCorrupted)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != nonceLength {
		return snapshot{}, fmt.Errorf("%w: bad nonce", ErrStoreCorrupted)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: bad ciphertext", ErrStoreCorrupted)
	}

	gcm, err := s.cipher(salt)
	if err != nil {
		return snapshot{}, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return snapshot{}, ErrDecrypt
	}

	var snap snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return snapshot{}, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if snap.Secrets == nil {
		snap.Secrets = map[string]string{}
	}
	return snap, nil
}

func (s *FileStore) writeLocked(snap snapshot) error {
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}

	salt, err := randomBytes(saltLength)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	nonce, err := randomBytes(nonceLength)
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	gcm, err := s.cipher(salt)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(envelope{
		Version:    fileFormatVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode secret store: %w", err)
	}
	return writeAtomic(s.path, data, 0o600)
}

func (s *FileStore) cipher(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, s.kdf.Time, s.kdf.Memory, s.kdf.Threads, keyLength)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeAtomic replaces path with data via a temp file in the same
// directory.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create secret store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".svnsync-secrets-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace secret store: %w", err)
	}
	return nil
}
