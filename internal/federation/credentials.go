package federation

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// ParseCertificate parses an X.509 certificate from PEM text. Raw base64 DER
// without PEM armor is accepted too, since IdP admin consoles export both.
func ParseCertificate(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		der, err := base64.StdEncoding.DecodeString(certPEM)
		if err != nil {
			return nil, fmt.Errorf("certificate is neither PEM nor base64 DER")
		}
		return x509.ParseCertificate(der)
	}
	return x509.ParseCertificate(block.Bytes)
}

// ParsePrivateKey parses an RSA private key from PEM text, trying PKCS#8
// then PKCS#1.
func ParsePrivateKey(keyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
