package key

import (
	"encoding/hex"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/xaynetwork/xaynet-coordinator/fs"
)

// identityTOML is the on-disk shape of a coordinator's long-lived Ed25519
// identity key pair (spec §C round-seed derivation), hex-encoded the way the
// teacher's key/group files encode binary fields for TOML.
type identityTOML struct {
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
}

// SaveIdentity writes kp to path, private material first with tight
// permissions, mirroring the teacher's FileStore.Save(secure=true) for
// private keys.
func SaveIdentity(path string, kp *SigningKeyPair) error {
	fd, err := fs.CreateSecureFile(path)
	if err != nil {
		return fmt.Errorf("key: creating %s: %w", path, err)
	}
	defer fd.Close()

	// ed25519 private key encoding is seed(32) || public(32); only the seed
	// is needed to reconstruct the pair via SigningKeyPairFromSeed.
	seed := kp.PrivateBytes()[:32]
	t := identityTOML{
		PublicKey:  hex.EncodeToString(kp.Public.Bytes()),
		PrivateKey: hex.EncodeToString(seed),
	}
	return toml.NewEncoder(fd).Encode(t)
}

// LoadIdentity reads back a key pair saved by SaveIdentity.
func LoadIdentity(path string) (*SigningKeyPair, error) {
	var t identityTOML
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("key: reading %s: %w", path, err)
	}
	seed, err := hex.DecodeString(t.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("key: decoding private key in %s: %w", path, err)
	}
	return SigningKeyPairFromSeed(seed)
}
