package token

import "github.com/authhub/authhub/internal/util"

// Opaque token and authorization-code plaintext length, in hex characters.
const opaqueLength = 64

// NewOpaque generates an opaque random credential and the SHA-256 hash under
// which it is persisted. The plaintext leaves the process exactly once, in
// the response that delivers it.
func NewOpaque() (plain, hash string, err error) {
	plain, err = util.CryptoRandomHex(opaqueLength)
	if err != nil {
		return "", "", err
	}
	return plain, util.SHA256Hex(plain), nil
}
