package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oapi-codegen/runtime"
	"github.com/zalando/go-keyring"
)

// Stored is the subset of the credential document owned by the proxy.
// Other fields in the same document are left untouched.
type Stored struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	LastUpdated  time.Time `json:"last_updated,omitzero"`
}

// Persister loads and saves the credential document.
type Persister interface {
	// Load returns ErrNotPersisted when nothing is stored.
	Load(ctx context.Context) (Stored, error)
	// Save merges s into the stored document.
	Save(ctx context.Context, s Stored) error
	// Clear removes the proxy's tokens from the stored document.
	Clear(ctx context.Context) error
	// String describes the location for logs.
	String() string
}

// mergeDocument merges s over the existing JSON document. An empty or
// unparsable document is replaced.
func mergeDocument(existing []byte, s Stored) ([]byte, error) {
	patch, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding credential: %w", err)
	}

	if len(bytes.TrimSpace(existing)) == 0 || !json.Valid(existing) {
		return patch, nil
	}

	merged, err := runtime.JSONMerge(existing, patch)
	if err != nil {
		return nil, fmt.Errorf("merging credential document: %w", err)
	}
	return merged, nil
}

// FilePersister stores the credential document as a JSON file.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister for path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// DefaultFilePath returns ~/.factory/auth.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".factory", "auth.json"), nil
}

// String implements Persister.
func (p *FilePersister) String() string {
	return "file:" + p.path
}

// Load implements Persister.
func (p *FilePersister) Load(ctx context.Context) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stored{}, ErrNotPersisted
	}
	if err != nil {
		return Stored{}, fmt.Errorf("reading %s: %w", p.path, err)
	}

	var s Stored
	if err := json.Unmarshal(data, &s); err != nil {
		return Stored{}, fmt.Errorf("parsing %s: %w", p.path, err)
	}
	if s.RefreshToken == "" {
		return Stored{}, ErrNotPersisted
	}
	return s, nil
}

// Save implements Persister. The file is replaced atomically with mode 0600.
func (p *FilePersister) Save(ctx context.Context, s Stored) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := os.ReadFile(p.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", p.path, err)
	}

	merged, err := mergeDocument(existing, s)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, merged, "", "  "); err != nil {
		return fmt.Errorf("formatting credential document: %w", err)
	}
	out.WriteByte('\n')

	return p.writeAtomic(out.Bytes())
}

// Clear implements Persister.
func (p *FilePersister) Clear(ctx context.Context) error {
	if _, err := os.Stat(p.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return p.Save(ctx, Stored{LastUpdated: time.Now().UTC()})
}

func (p *FilePersister) writeAtomic(data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".auth-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("replacing %s: %w", p.path, err)
	}
	return nil
}

// KeyringPersister stores the credential document as one secret in the OS
// keyring.
type KeyringPersister struct {
	service string
	user    string
}

// NewKeyringPersister creates a persister for the keyring entry service/user.
func NewKeyringPersister(service, user string) *KeyringPersister {
	return &KeyringPersister{service: service, user: user}
}

// String implements Persister.
func (p *KeyringPersister) String() string {
	return "keyring:" + p.service + "/" + p.user
}

// Load implements Persister.
func (p *KeyringPersister) Load(ctx context.Context) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	secret, err := keyring.Get(p.service, p.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return Stored{}, ErrNotPersisted
	}
	if err != nil {
		return Stored{}, fmt.Errorf("reading keyring: %w", err)
	}

	var s Stored
	if err := json.Unmarshal([]byte(secret), &s); err != nil {
		return Stored{}, fmt.Errorf("parsing keyring secret: %w", err)
	}
	if s.RefreshToken == "" {
		return Stored{}, ErrNotPersisted
	}
	return s, nil
}

// Save implements Persister.
func (p *KeyringPersister) Save(ctx context.Context, s Stored) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := keyring.Get(p.service, p.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("reading keyring: %w", err)
	}

	merged, err := mergeDocument([]byte(existing), s)
	if err != nil {
		return err
	}

	if err := keyring.Set(p.service, p.user, string(merged)); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}

// Clear implements Persister.
func (p *KeyringPersister) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Delete(p.service, p.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry: %w", err)
	}
	return nil
}
