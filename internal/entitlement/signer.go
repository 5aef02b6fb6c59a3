package entitlement

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ent0n29/speakbot/internal/identity"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrSignerDisabled = errors.New("signing key not configured")
)

// Signature proves to the registry contract that a wallet was claimed by a
// given Telegram user. Field names follow the contract's verifier.
type Signature struct {
	MessageHash string `json:"messageHash"`
	TelegramID  string `json:"telegramId"`
	V           string `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
}

// Signer binds wallet addresses to user keys.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner parses a hex private key. An empty key yields a signer that
// refuses every request.
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return &Signer{}, nil
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Enabled() bool {
	return s != nil && s.key != nil
}

// Address is the public address the contract expects signatures from.
func (s *Signer) Address() common.Address {
	if !s.Enabled() {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign hashes the packed (bytes32 telegramId, address) pair and signs it as
// an Ethereum signed message.
func (s *Signer) Sign(userKey, address string) (Signature, error) {
	if !s.Enabled() {
		return Signature{}, ErrSignerDisabled
	}
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return Signature{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	telegramID, ok := identity.ParseKey(userKey)
	if !ok {
		return Signature{}, fmt.Errorf("%w: %q", errMalformedKey, userKey)
	}

	addr := common.HexToAddress(address)
	messageHash := crypto.Keccak256Hash(telegramID.Bytes(), addr.Bytes())
	sig, err := crypto.Sign(accounts.TextHash(messageHash.Bytes()), s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}

	return Signature{
		MessageHash: messageHash.Hex(),
		TelegramID:  telegramID.Hex(),
		V:           hexutil.EncodeUint64(uint64(sig[64]) + 27),
		R:           hexutil.Encode(sig[:32]),
		S:           hexutil.Encode(sig[32:64]),
	}, nil
}
