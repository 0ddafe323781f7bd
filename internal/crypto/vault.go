package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/custody-wallet/internal/secret"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	keystoreVersion = 3
	keystoreCipher  = "aes-128-ctr"
	kdfScrypt       = "scrypt"
	kdfPBKDF2       = "pbkdf2"
	minDKLen        = 32
	maxDKLen        = 64

	// Upper bounds on parameters read back from a stored keystore.
	maxScryptN = 1 << 20
	maxScryptR = 16
	maxScryptP = 16
	maxPBKDF2C = 1 << 22
)

var (
	// ErrInvalidSecret is returned when the keystore MAC does not verify,
	// i.e. the derived secret (and so the password) is wrong.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrMalformedKeystore is returned for keystores that cannot be parsed
	// or use unsupported parameters.
	ErrMalformedKeystore = errors.New("malformed keystore")
)

// keystoreJSON is the Web3 Secret Storage v3 document.
type keystoreJSON struct {
	Address string              `json:"address"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
	ID      string              `json:"id"`
	Version int                 `json:"version"`
}

// Vault encrypts private keys into keystore v3 documents under a derived
// secret and opens them again.
type Vault struct {
	scryptN int
	scryptP int
}

// NewVault creates a Vault that writes keystores with the given scrypt cost.
func NewVault(scryptN, scryptP int) *Vault {
	return &Vault{scryptN: scryptN, scryptP: scryptP}
}

// EncryptKey seals key under derived. The keystore passphrase is the hex
// encoding of derived, the same convention web3 tooling uses for a
// password string, so the blob also opens in geth given that passphrase.
func (v *Vault) EncryptKey(key *ecdsa.PrivateKey, derived *secret.Buffer) ([]byte, error) {
	if key == nil {
		return nil, errors.New("nil private key")
	}
	if derived == nil || derived.Len() != SecretLen {
		return nil, fmt.Errorf("%w: derived secret must be %d bytes", ErrInvalidSecret, SecretLen)
	}

	keyBytes := secret.FromBytes(ethcrypto.FromECDSA(key))
	defer keyBytes.Destroy()
	pass := derived.Hex()
	defer pass.Destroy()

	cryptoStruct, err := keystore.EncryptDataV3(keyBytes.Bytes(), pass.Bytes(), v.scryptN, v.scryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	address := ethcrypto.PubkeyToAddress(key.PublicKey)
	doc := keystoreJSON{
		Address: hex.EncodeToString(address[:]),
		Crypto:  cryptoStruct,
		ID:      uuid.New().String(),
		Version: keystoreVersion,
	}
	blob, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keystore: %w", err)
	}
	return blob, nil
}

// DecryptKey opens a keystore v3 document with derived. A MAC mismatch is
// reported as ErrInvalidSecret; a corrupted key is never returned.
// The caller owns the returned key and must wipe it.
func (v *Vault) DecryptKey(blob []byte, derived *secret.Buffer) (*ecdsa.PrivateKey, error) {
	if derived == nil || derived.Len() != SecretLen {
		return nil, ErrInvalidSecret
	}

	var doc keystoreJSON
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeystore, err)
	}
	if doc.Version != keystoreVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedKeystore, doc.Version)
	}
	if doc.Crypto.Cipher != keystoreCipher {
		return nil, fmt.Errorf("%w: cipher %q", ErrMalformedKeystore, doc.Crypto.Cipher)
	}

	mac, err := hex.DecodeString(doc.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: mac: %v", ErrMalformedKeystore, err)
	}
	iv, err := hex.DecodeString(doc.Crypto.CipherParams.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv", ErrMalformedKeystore)
	}
	cipherText, err := hex.DecodeString(doc.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedKeystore, err)
	}

	pass := derived.Hex()
	defer pass.Destroy()

	derivedKey, err := keystoreKDF(doc.Crypto, pass.Bytes())
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	calculatedMAC := ethcrypto.Keccak256(derivedKey[16:32], cipherText)
	if subtle.ConstantTimeCompare(calculatedMAC, mac) != 1 {
		return nil, ErrInvalidSecret
	}

	block, err := aes.NewCipher(derivedKey[:16])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plainText := make([]byte, len(cipherText))
	defer clear(plainText)
	cipher.NewCTR(block, iv).XORKeyStream(plainText, cipherText)

	key, err := ethcrypto.ToECDSA(plainText)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key", ErrMalformedKeystore)
	}

	if doc.Address != "" {
		want := common.HexToAddress(doc.Address)
		if ethcrypto.PubkeyToAddress(key.PublicKey) != want {
			secret.WipeECDSA(key)
			return nil, ErrInvalidSecret
		}
	}
	return key, nil
}

// keystoreKDF derives the keystore encryption key from the passphrase.
// Unlike go-ethereum's DecryptDataV3 it takes the passphrase as bytes so
// the caller can zero it.
func keystoreKDF(c keystore.CryptoJSON, pass []byte) ([]byte, error) {
	saltHex, ok := c.KDFParams["salt"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing kdf salt", ErrMalformedKeystore)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("%w: kdf salt: %v", ErrMalformedKeystore, err)
	}
	dkLen, err := intParam(c.KDFParams, "dklen")
	if err != nil {
		return nil, err
	}
	if dkLen < minDKLen || dkLen > maxDKLen {
		return nil, fmt.Errorf("%w: dklen %d", ErrMalformedKeystore, dkLen)
	}

	switch c.KDF {
	case kdfScrypt:
		n, err := intParam(c.KDFParams, "n")
		if err != nil {
			return nil, err
		}
		r, err := intParam(c.KDFParams, "r")
		if err != nil {
			return nil, err
		}
		p, err := intParam(c.KDFParams, "p")
		if err != nil {
			return nil, err
		}
		if n <= 1 || n > maxScryptN || r <= 0 || r > maxScryptR || p <= 0 || p > maxScryptP {
			return nil, fmt.Errorf("%w: scrypt params n=%d r=%d p=%d out of range", ErrMalformedKeystore, n, r, p)
		}
		key, err := scrypt.Key(pass, salt, n, r, p, dkLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKDF, err)
		}
		return key, nil
	case kdfPBKDF2:
		iter, err := intParam(c.KDFParams, "c")
		if err != nil {
			return nil, err
		}
		if iter <= 0 || iter > maxPBKDF2C {
			return nil, fmt.Errorf("%w: pbkdf2 iterations %d out of range", ErrMalformedKeystore, iter)
		}
		if prf, _ := c.KDFParams["prf"].(string); prf != "hmac-sha256" {
			return nil, fmt.Errorf("%w: unsupported PBKDF2 PRF %q", ErrMalformedKeystore, prf)
		}
		return pbkdf2.Key(pass, salt, iter, dkLen, sha256.New), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrMalformedKeystore, c.KDF)
	}
}

// intParam reads a numeric kdf parameter. JSON numbers decode as float64,
// freshly built params hold ints.
func intParam(params map[string]interface{}, name string) (int, error) {
	switch v := params[name].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: kdf param %q", ErrMalformedKeystore, name)
	}
}
