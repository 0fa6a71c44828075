// Package vault provides a cross-platform secure credential store for
// broker API keys and secrets.
//
// Credentials live in an encrypted on-disk file whose key is derived via
// PBKDF2 from a machine identity string; no native OS key-store is used.
// For a key absent from the file, Get falls back to bare environment
// variables (with a once-per-key warning, since env vars are not
// protected at rest).
//
// Grounded in the original credential_manager.py / credential_loader.py
// design: namespace-scoped keys, owner-only file permissions, "never lose
// data on a backend error" semantics.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	appSalt        = "tradegateway-vault-v1"
	pbkdf2Iters    = 100_000
	keyLen         = 32 // AES-256
	fileName       = "vault.enc"
	envPrefix      = "GATEWAY_CRED_"
	defaultDirName = "tradegateway"
)

// Backend is the storage strategy a Vault delegates to.
type Backend string

const (
	BackendOSKeystore    Backend = "os_keystore"
	BackendEncryptedFile Backend = "encrypted_file"
	BackendEnv           Backend = "env"
)

// Vault is a namespaced key/value credential store.
type Vault struct {
	mu      sync.Mutex
	logger  *log.Logger
	backend Backend
	path    string
	gcm     cipher.AEAD
	warned  sync.Map // key -> struct{}, for the once-per-key env fallback warning
}

// record is the on-disk shape of a single stored credential.
type record struct {
	Value string `json:"value"`
}

// Open selects a backend and returns a ready-to-use Vault. path is the
// directory the encrypted-file backend will use; pass "" to use the
// platform default ($HOME/.local/share/tradegateway style).
//
// This implementation does not link a native OS keystore (no such
// dependency appears anywhere in the example corpus); it goes straight to
// the encrypted-file backend, which is always available.
func Open(path string, logger *log.Logger) (*Vault, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	if path == "" {
		dir, err := defaultVaultDir()
		if err != nil {
			return nil, fmt.Errorf("vault: resolve default dir: %w", err)
		}
		path = dir
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("vault: create vault dir: %w", err)
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}

	v := &Vault{
		logger:  logger,
		backend: BackendEncryptedFile,
		path:    filepath.Join(path, fileName),
		gcm:     gcm,
	}
	logger.Printf("[vault] opened backend=%s path=%s", v.backend, v.path)
	return v, nil
}

func defaultVaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", defaultDirName), nil
}

// deriveKey derives the file-encryption key from a machine identity
// string (hostname + current user + app tag) via PBKDF2-SHA256.
func deriveKey() ([]byte, error) {
	host, _ := os.Hostname()
	u, err := user.Current()
	username := "unknown"
	if err == nil {
		username = u.Username
	}
	identity := fmt.Sprintf("%s:%s:%s", host, username, appSalt)
	return pbkdf2.Key([]byte(identity), []byte(appSalt), pbkdf2Iters, keyLen, sha256.New), nil
}

func credentialID(namespace, key string) string {
	return namespace + ":" + key
}

// Get retrieves a credential. If it is absent from the file backend, Get
// falls back to the environment variable GATEWAY_CRED_<NAMESPACE>_<KEY>
// (upper-cased, non-alnum replaced with "_"), logging a one-time warning
// per key the first time the fallback is used.
func (v *Vault) Get(namespace, key string) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.load()
	if err != nil {
		return "", false, err
	}
	if rec, ok := data[credentialID(namespace, key)]; ok {
		return rec.Value, true, nil
	}

	envKey := envVarName(namespace, key)
	if val, ok := os.LookupEnv(envKey); ok {
		if _, alreadyWarned := v.warned.LoadOrStore(envKey, struct{}{}); !alreadyWarned {
			v.logger.Printf("[vault] WARNING: %s/%s not in vault, falling back to env var %s (not protected at rest)",
				namespace, key, envKey)
		}
		return val, true, nil
	}

	return "", false, nil
}

// Put stores a credential in the encrypted file, creating or overwriting it.
func (v *Vault) Put(namespace, key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.load()
	if err != nil {
		return err
	}
	data[credentialID(namespace, key)] = record{Value: value}
	return v.save(data)
}

// Delete removes a credential. It is not an error to delete an absent key.
func (v *Vault) Delete(namespace, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.load()
	if err != nil {
		return err
	}
	delete(data, credentialID(namespace, key))
	return v.save(data)
}

// List returns all stored keys within a namespace (env-var fallback
// credentials are not enumerable and are excluded).
func (v *Vault) List(namespace string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.load()
	if err != nil {
		return nil, err
	}
	prefix := namespace + ":"
	var keys []string
	for id := range data {
		if strings.HasPrefix(id, prefix) {
			keys = append(keys, strings.TrimPrefix(id, prefix))
		}
	}
	return keys, nil
}

func envVarName(namespace, key string) string {
	clean := func(s string) string {
		s = strings.ToUpper(s)
		var b strings.Builder
		for _, r := range s {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			} else {
				b.WriteRune('_')
			}
		}
		return b.String()
	}
	return envPrefix + clean(namespace) + "_" + clean(key)
}

// load decrypts and parses the vault file. A missing file is not an error
// (empty vault).
func (v *Vault) load() (map[string]record, error) {
	data := make(map[string]record)

	ciphertext, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read file: %w", err)
	}
	if len(ciphertext) == 0 {
		return data, nil
	}

	nonceSize := v.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("vault: corrupt vault file (too short)")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}

	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("vault: parse: %w", err)
	}
	return data, nil
}

// save encrypts and writes the vault file with owner-only permissions.
func (v *Vault) save(data map[string]record) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("vault: marshal: %w", err)
	}

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := v.gcm.Seal(nonce, nonce, plaintext, nil)

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, ciphertext, 0o600); err != nil {
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("vault: rename temp file: %w", err)
	}
	return os.Chmod(v.path, 0o600)
}
