package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/PolarWolf314/pantry/internal/utils"

	"golang.org/x/crypto/ssh"
)

// ParsePrivateKey decodes an RSA private key in PKCS#1, PKCS#8 or OpenSSH form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return asRSA(key)
	case "OPENSSH PRIVATE KEY":
		key, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse OpenSSH private key: %w", err)
		}
		return asRSA(key)
	default:
		return nil, fmt.Errorf("unsupported private key type %q", block.Type)
	}
}

func asRSA(key any) (*rsa.PrivateKey, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case rsa.PrivateKey:
		return &k, nil
	default:
		return nil, fmt.Errorf("not an RSA private key (%T)", key)
	}
}

// LoadPrivateKey reads and parses an RSA private key from disk.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data)
}

// EncodePrivateKey renders key as a PKCS#1 PEM block.
func EncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// WriteKeyFile atomically writes key material to path with 0600 permissions.
func WriteKeyFile(path string, data []byte) error {
	if err := utils.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}
