package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/crypto"
)

// blindedOutputs are the blinded messages sent to a mint together with
// the secrets and blinding factors needed to unblind its signatures.
// secrets[i] and rs[i] belong to messages[i].
type blindedOutputs struct {
	keyset   *crypto.WalletKeyset
	messages cashu.BlindedMessages
	secrets  []string
	rs       []*secp256k1.PrivateKey
}

// newBlindedOutputs creates one blinded message per amount, each with
// a fresh random secret and blinding factor.
func newBlindedOutputs(keyset *crypto.WalletKeyset, amounts []uint64) (*blindedOutputs, error) {
	outputs := &blindedOutputs{
		keyset:   keyset,
		messages: make(cashu.BlindedMessages, len(amounts)),
		secrets:  make([]string, len(amounts)),
		rs:       make([]*secp256k1.PrivateKey, len(amounts)),
	}

	for i, amount := range amounts {
		if _, ok := keyset.PublicKeys[amount]; !ok {
			return nil, fmt.Errorf("keyset %v has no key for amount %d", keyset.Id, amount)
		}

		// create random secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, err
		}
		secret := hex.EncodeToString(secretBytes)

		// generate new private key r
		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}

		B_, r, err := crypto.BlindMessage([]byte(secret), r.Serialize())
		if err != nil {
			return nil, err
		}

		outputs.messages[i] = cashu.NewBlindedMessage(keyset.Id, amount, B_)
		outputs.secrets[i] = secret
		outputs.rs[i] = r
	}

	return outputs, nil
}

// append merges other into o. Both must be for the same keyset.
func (o *blindedOutputs) append(other *blindedOutputs) {
	o.messages = append(o.messages, other.messages...)
	o.secrets = append(o.secrets, other.secrets...)
	o.rs = append(o.rs, other.rs...)
}

// sort orders the messages by amount so the request does not
// reveal which outputs belong together.
func (o *blindedOutputs) sort() {
	cashu.SortBlindedMessages(o.messages, o.secrets, o.rs)
}

// constructProofs unblinds the mint's signatures, which must be in the
// same order as the messages.
func (o *blindedOutputs) constructProofs(blindedSignatures cashu.BlindedSignatures) (cashu.Proofs, error) {
	if len(blindedSignatures) != len(o.messages) {
		return nil, &CryptoError{Err: errors.New("number of signatures does not match outputs")}
	}

	proofs := make(cashu.Proofs, len(blindedSignatures))
	for i, blindedSignature := range blindedSignatures {
		if blindedSignature.Amount != o.messages[i].Amount {
			return nil, &CryptoError{
				Err: fmt.Errorf("signature for amount %d does not match output %d", blindedSignature.Amount, o.messages[i].Amount),
			}
		}

		C_bytes, err := hex.DecodeString(blindedSignature.C_)
		if err != nil {
			return nil, &CryptoError{Err: err}
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, &CryptoError{Err: err}
		}

		K, ok := o.keyset.PublicKeys[blindedSignature.Amount]
		if !ok {
			return nil, &CryptoError{Err: fmt.Errorf("no key for amount %d", blindedSignature.Amount)}
		}
		C := crypto.UnblindSignature(C_, o.rs[i], K)

		proofs[i] = cashu.Proof{
			Amount: blindedSignature.Amount,
			Id:     o.messages[i].Id,
			Secret: o.secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
	}

	return proofs, nil
}
