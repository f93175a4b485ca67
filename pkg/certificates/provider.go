package certificates

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const (
	caKeyBits   = 4096
	leafKeyBits = 2048

	defaultValidity = 365 * 24 * time.Hour
)

// KeyPair is a certificate with its private key.
type KeyPair struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// NewRootCA generates the self signed root every scenario certificate is issued by.
func NewRootCA(expire time.Time) (*KeyPair, error) {
	csr := &x509.Certificate{
		SerialNumber: newSerial(),
		Issuer: pkix.Name{
			Organization: []string{"Apache NiFi"},
		},
		Subject: pkix.Name{
			Country:            []string{"US"},
			Organization:       []string{"Apache NiFi"},
			OrganizationalUnit: []string{"MiNiFi integration tests"},
			CommonName:         "root CA",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              expire,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa private key: %w", err)
	}

	return sign(csr, csr, privateKey, privateKey)
}

// MakeServerCert issues a certificate for a service reachable under cn.
func MakeServerCert(cn string, ca *KeyPair) (*KeyPair, error) {
	return issue(cn, ca, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth})
}

// MakeClientCert issues a certificate usable for both client and server authentication.
func MakeClientCert(cn string, ca *KeyPair) (*KeyPair, error) {
	return issue(cn, ca, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth})
}

// MakeCertWithoutExtendedUsage issues a certificate with no extended key usage.
func MakeCertWithoutExtendedUsage(cn string, ca *KeyPair) (*KeyPair, error) {
	return issue(cn, ca, nil)
}

func issue(cn string, ca *KeyPair, usage []x509.ExtKeyUsage) (*KeyPair, error) {
	if ca == nil {
		return nil, fmt.Errorf("no CA to issue %q", cn)
	}
	csr := &x509.Certificate{
		SerialNumber: newSerial(),
		Subject: pkix.Name{
			Organization: []string{"Apache NiFi"},
			CommonName:   cn,
		},
		DNSNames:    []string{cn},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().Add(defaultValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: usage,
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa private key: %w", err)
	}

	return sign(csr, ca.Cert, privateKey, ca.Key)
}

func sign(csr, parent *x509.Certificate, key, signer *rsa.PrivateKey) (*KeyPair, error) {
	certData, err := x509.CreateCertificate(rand.Reader, csr, parent, key.Public(), signer)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(certData)
	if err != nil {
		return nil, err
	}

	return &KeyPair{Cert: cert, Key: key}, nil
}

func newSerial() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 62)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}

func (k *KeyPair) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: k.Cert.Raw})
}

func (k *KeyPair) KeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k.Key)})
}

// MergedPEM is the certificate followed by its key, the format some services expect in one file.
func (k *KeyPair) MergedPEM() []byte {
	return append(k.CertPEM(), k.KeyPEM()...)
}
