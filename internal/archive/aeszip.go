package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
)

// WinZip AE-2 layout for AES-256.
const (
	methodAES     = 99
	aesExtraID    = 0x9901
	aesVendorAE2  = 2
	aesStrength   = 3
	aesKeyLen     = 32
	aesSaltLen    = aesKeyLen / 2
	pwvLen        = 2
	authCodeLen   = 10
	kdfIterations = 1000
	zipVersionAES = 51
)

// AESZip is the default codec: one WinZip AES-256 (AE-2) entry whose
// payload is deflated at Level before encryption.
type AESZip struct {
	Level int
}

// WriteEncrypted implements Codec.
func (c AESZip) WriteEncrypted(w io.Writer, name string, content []byte, password string) error {
	var deflated bytes.Buffer
	fw, err := flate.NewWriter(&deflated, c.Level)
	if err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}

	salt := make([]byte, aesSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("salt: %w", err)
	}
	keys, err := pbkdf2.Key(sha1.New, password, salt, kdfIterations, 2*aesKeyLen+pwvLen)
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}
	encKey, authKey, pwv := keys[:aesKeyLen], keys[aesKeyLen:2*aesKeyLen], keys[2*aesKeyLen:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("cipher: %w", err)
	}
	sealed := make([]byte, deflated.Len())
	newWinZipCTR(block).XORKeyStream(sealed, deflated.Bytes())
	mac := hmac.New(sha1.New, authKey)
	mac.Write(sealed)
	authCode := mac.Sum(nil)[:authCodeLen]

	extra := make([]byte, 0, 11)
	extra = binary.LittleEndian.AppendUint16(extra, aesExtraID)
	extra = binary.LittleEndian.AppendUint16(extra, 7)
	extra = binary.LittleEndian.AppendUint16(extra, aesVendorAE2)
	extra = append(extra, 'A', 'E')
	extra = append(extra, aesStrength)
	extra = binary.LittleEndian.AppendUint16(extra, zip.Deflate)

	zw := zip.NewWriter(w)
	entry, err := zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             methodAES,
		Flags:              0x1,
		CreatorVersion:     zipVersionAES,
		ReaderVersion:      zipVersionAES,
		Extra:              extra,
		CompressedSize64:   uint64(aesSaltLen + pwvLen + len(sealed) + authCodeLen),
		UncompressedSize64: uint64(len(content)),
	})
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	for _, part := range [][]byte{salt, pwv, sealed, authCode} {
		if _, err := entry.Write(part); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

// winZipCTR is AES-CTR with the little-endian counter WinZip uses,
// starting at 1.
type winZipCTR struct {
	block   cipher.Block
	counter [aes.BlockSize]byte
	pad     [aes.BlockSize]byte
	used    int
}

func newWinZipCTR(block cipher.Block) *winZipCTR {
	c := &winZipCTR{block: block, used: aes.BlockSize}
	c.counter[0] = 1
	return c
}

func (c *winZipCTR) XORKeyStream(dst, src []byte) {
	for i := range src {
		if c.used == aes.BlockSize {
			c.block.Encrypt(c.pad[:], c.counter[:])
			for j := range c.counter {
				c.counter[j]++
				if c.counter[j] != 0 {
					break
				}
			}
			c.used = 0
		}
		dst[i] = src[i] ^ c.pad[c.used]
		c.used++
	}
}
