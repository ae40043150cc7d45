// pkg/security/credentials.go
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// SecurityCredential encrypts an API initiator password against the
// provider's public certificate (PKCS#1 v1.5) and base64-encodes the result,
// as the reversal and status APIs require. The returned credential and the
// input password must never be written to logs.
func SecurityCredential(certPEM []byte, initiatorPassword string) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("certificate does not contain RSA public key")
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt password: %w", err)
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// SecurityCredentialFromFile reads the certificate at certPath and encrypts
// initiatorPassword against it.
func SecurityCredentialFromFile(certPath, initiatorPassword string) (string, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}
	return SecurityCredential(certData, initiatorPassword)
}
