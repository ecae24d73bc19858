package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rendis/caseflow/pkg/schema"
)

// CodecConfig configures the codec's key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type CodecConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       string // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// Codec seals JSON variable values into opaque AES-256-GCM envelopes and
// opens them again. The envelope wire form is base64(nonce || ciphertext)
// carried as the variable's string value.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec with AES-256-GCM encryption.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

func deriveKey(cfg CodecConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeCrypto,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeCrypto, "either master_key or passphrase is required")
	}
	if cfg.Salt == "" {
		return nil, schema.NewError(schema.ErrCodeCrypto, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key([]byte(cfg.Passphrase), []byte(cfg.Salt), iterations, 32, sha256.New), nil
}

func (c *Codec) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Codec) open(envelope []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(envelope) < nonceSize {
		return nil, schema.NewError(schema.ErrCodeCrypto, "envelope too short")
	}
	nonce := envelope[:nonceSize]
	ct := envelope[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCrypto, "decrypt failed: %s", err.Error())
	}
	return plaintext, nil
}

// EncryptVariable seals the variable's value in place. Only Json-typed
// variables are encrypted; any other type passes through untouched.
// After sealing, the type becomes Object and valueInfo carries the
// envelope markers needed by DecryptVariable.
func (c *Codec) EncryptVariable(v *schema.Variable) error {
	if v == nil || !v.IsJSON() {
		return nil
	}
	plain, err := valueBytes(v.Value)
	if err != nil {
		return err
	}
	envelope, err := c.seal(plain)
	if err != nil {
		return err
	}
	v.Value = base64.StdEncoding.EncodeToString(envelope)
	v.Type = schema.VariableTypeObject
	v.ValueInfo = map[string]any{
		schema.ValueInfoObjectTypeName:          schema.SealedEnvelopeTypeName,
		schema.ValueInfoSerializationDataFormat: schema.SealedEnvelopeDataFormat,
	}
	return nil
}

// DecryptVariable opens a sealed variable in place. Variables without the
// envelope marker in valueInfo are returned unchanged. With deserialize set,
// the decrypted value is kept as a structured document and valueInfo is
// cleared; otherwise the value is the plaintext JSON text and valueInfo is
// reduced to the data-format name.
func (c *Codec) DecryptVariable(v *schema.Variable, deserialize bool) error {
	if !v.IsSealed() {
		return nil
	}
	envelope, err := envelopeBytes(v.Value)
	if err != nil {
		return err
	}
	plain, err := c.open(envelope)
	if err != nil {
		return err
	}
	if deserialize {
		var doc any
		if err := json.Unmarshal(plain, &doc); err != nil {
			return schema.NewError(schema.ErrCodeCrypto, "decrypted value is not valid JSON").WithCause(err)
		}
		v.Value = doc
		v.ValueInfo = map[string]any{}
	} else {
		v.Value = string(plain)
		v.ValueInfo = map[string]any{
			schema.ValueInfoSerializationDataFormat: schema.JSONDataFormat,
		}
	}
	v.Type = schema.VariableTypeJSON
	return nil
}

// valueBytes renders a variable value as the JSON bytes to seal. Json-typed
// variables usually carry their document as a string of JSON text; structured
// values are marshalled.
func valueBytes(value any) ([]byte, error) {
	switch val := value.(type) {
	case string:
		return []byte(val), nil
	case []byte:
		return val, nil
	case json.RawMessage:
		return val, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeCrypto, "variable value is not serializable").WithCause(err)
		}
		return b, nil
	}
}

// envelopeBytes accepts both transport forms of a sealed envelope: the
// base64 string it travels as on the wire, or the raw bytes when in memory.
func envelopeBytes(value any) ([]byte, error) {
	switch val := value.(type) {
	case string:
		raw, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeCrypto, "envelope is not valid base64").WithCause(err)
		}
		return raw, nil
	case []byte:
		return val, nil
	case json.RawMessage:
		return val, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeCrypto, "unsupported envelope value of type %T", value)
	}
}
