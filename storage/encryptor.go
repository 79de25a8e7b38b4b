package storage

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/klauspost/compress/flate"
)

// PEMFileReader loads a PKCS8-encoded PEM key file and exposes its raw
// RSA (e, n) or (d, n) pair. Real PEM/ASN.1 parsing is delegated to
// crypto/x509 — only the traversal down to the bare integers is custom,
// mirroring the reference implementation's hand-rolled DER walk.
type PEMFileReader struct {
	path string
}

// NewPEMFileReader returns a reader over path; the file is not read until
// LoadPublicKey/LoadPrivateKey is called.
func NewPEMFileReader(path string) *PEMFileReader { return &PEMFileReader{path: path} }

func (r *PEMFileReader) decode() ([]byte, error) {
	data, err := os.ReadFile(r.path) // #nosec G304 -- path is caller-controlled
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("encryptor: %s contains no PEM block", r.path)
	}
	return block.Bytes, nil
}

// LoadPublicKey parses an RSA public key from a PKIX/PKCS8 PEM file and
// returns its (e, n) pair.
func (r *PEMFileReader) LoadPublicKey() (e, n *big.Int, err error) {
	der, derErr := r.decode()
	if derErr != nil {
		return nil, nil, derErr
	}
	pub, parseErr := x509.ParsePKIXPublicKey(der)
	if parseErr != nil {
		return nil, nil, parseErr
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("encryptor: %s is not an RSA public key", r.path)
	}
	return big.NewInt(int64(rsaPub.E)), rsaPub.N, nil
}

// LoadPrivateKey parses an RSA private key from a PKCS8 PEM file and
// returns its (d, n) pair.
func (r *PEMFileReader) LoadPrivateKey() (d, n *big.Int, err error) {
	der, derErr := r.decode()
	if derErr != nil {
		return nil, nil, derErr
	}
	key, parseErr := x509.ParsePKCS8PrivateKey(der)
	if parseErr != nil {
		return nil, nil, parseErr
	}
	rsaPriv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("encryptor: %s is not an RSA private key", r.path)
	}
	return rsaPriv.D, rsaPriv.N, nil
}

// RSAChunkEncryptor implements Encryptor by chunking plaintext into pieces
// smaller than the modulus, RSA-encrypting each chunk directly via modpow
// (textbook RSA, no padding scheme — matching the reference
// implementation exactly), and joining the base64 chunks with "|".
//
// This is a reference/demo Encryptor, not a production cipher: textbook
// RSA without padding is malleable and deterministic. Real deployments
// should supply their own Encryptor (e.g. AEAD-backed).
type RSAChunkEncryptor struct {
	pubE, pubN   *big.Int
	privD, privN *big.Int
	chunkSize    int
}

// NewRSAChunkEncryptor builds an encryptor from an optional public key
// (e, n) and an optional private key (d, n). At least one must be
// non-nil; encrypt needs the public key, decrypt needs the private key.
func NewRSAChunkEncryptor(pubE, pubN, privD, privN *big.Int) (*RSAChunkEncryptor, error) {
	if pubN == nil && privN == nil {
		return nil, errors.New("encryptor: at least one of public or private key is required")
	}
	r := &RSAChunkEncryptor{pubE: pubE, pubN: pubN, privD: privD, privN: privN}
	if pubN != nil {
		// -1 keeps the chunk's numeric value under the modulus; the second
		// -1 reserves room for the leading marker byte encryptChunk prepends.
		r.chunkSize = pubN.BitLen()/8 - 2
		if r.chunkSize <= 0 {
			return nil, errors.New("encryptor: modulus too small, use a larger key")
		}
	}
	return r, nil
}

// chunkMarker is prepended to every chunk before it is turned into a
// big.Int. Without it, a plaintext chunk beginning with 0x00 loses that
// byte on round-trip: SetBytes/Bytes both use the minimal big-endian
// encoding, so leading zero bytes of the chunk are indistinguishable from
// the integer's own leading-zero padding. A non-zero leading marker byte
// pins the encoded length so decryptChunk can recover it exactly.
const chunkMarker = 0x01

func (r *RSAChunkEncryptor) encryptChunk(chunk []byte) []byte {
	marked := make([]byte, 0, len(chunk)+1)
	marked = append(marked, chunkMarker)
	marked = append(marked, chunk...)
	chunkInt := new(big.Int).SetBytes(marked)
	return new(big.Int).Exp(chunkInt, r.pubE, r.pubN).Bytes()
}

func (r *RSAChunkEncryptor) decryptChunk(chunk []byte) []byte {
	chunkInt := new(big.Int).SetBytes(chunk)
	marked := new(big.Int).Exp(chunkInt, r.privD, r.privN).Bytes()
	if len(marked) == 0 {
		return marked
	}
	return marked[1:]
}

// EncryptString splits plaintext into chunkSize-byte pieces, RSA-encrypts
// each, and joins their base64 encodings with "|". Panics if no public
// key was configured — matching the reference implementation's
// fail-fast contract for a misconfigured encryptor.
func (r *RSAChunkEncryptor) EncryptString(plaintext string) string {
	if r.pubN == nil {
		panic("encryptor: public key required for encryption")
	}
	raw := []byte(plaintext)
	var parts []string
	for i := 0; i < len(raw); i += r.chunkSize {
		end := i + r.chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		parts = append(parts, base64.StdEncoding.EncodeToString(r.encryptChunk(raw[i:end])))
	}
	return strings.Join(parts, "|")
}

// DecryptString reverses EncryptString. Panics if no private key was
// configured, or if ciphertext is malformed.
func (r *RSAChunkEncryptor) DecryptString(ciphertext string) string {
	if r.privN == nil {
		panic("encryptor: private key required for decryption")
	}
	var out bytes.Buffer
	for _, part := range strings.Split(ciphertext, "|") {
		raw, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			panic("encryptor: malformed base64 chunk: " + err.Error())
		}
		out.Write(r.decryptChunk(raw))
	}
	return out.String()
}

var _ Encryptor = (*RSAChunkEncryptor)(nil)

// DeflateEncryptor decorates another Encryptor with DEFLATE compression
// (flate.NewWriter/flate.NewReader) applied before/after the wrapped
// cipher, so large values cost less once chunked and base64-expanded by
// RSAChunkEncryptor. Ciphertext is the wrapped cipher's output over the
// deflated plaintext, so it has whatever string form inner produces.
type DeflateEncryptor struct {
	inner Encryptor
}

// NewDeflateEncryptor wraps inner with DEFLATE compression.
func NewDeflateEncryptor(inner Encryptor) *DeflateEncryptor {
	return &DeflateEncryptor{inner: inner}
}

// EncryptString compresses plaintext, then encrypts the compressed bytes
// via inner, so the wrapped cipher's chunking operates on fewer bytes.
func (d *DeflateEncryptor) EncryptString(plaintext string) string {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestCompression)
	_, _ = io.WriteString(w, plaintext)
	_ = w.Close()
	return d.inner.EncryptString(buf.String())
}

// DecryptString reverses EncryptString: decrypt via inner, then inflate.
func (d *DeflateEncryptor) DecryptString(ciphertext string) string {
	compressed := d.inner.DecryptString(ciphertext)
	r := flate.NewReader(strings.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		panic("encryptor: corrupt deflate stream: " + err.Error())
	}
	return string(out)
}

var _ Encryptor = (*DeflateEncryptor)(nil)
