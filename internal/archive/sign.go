package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/oshokin/puppet-deb/internal/logger"
)

// ErrSign is wrapped by every signing failure.
var ErrSign = errors.New("sign archive")

// SignatureExt is appended to the artifact path for the detached signature.
const SignatureExt = ".asc"

// SignFile writes an armored detached signature of artifact to artifact + ".asc"
// using the first private key found in the armored key file. An encrypted key
// is unlocked with passphrase.
func SignFile(ctx context.Context, artifact, keyPath string, passphrase []byte) (string, error) {
	signer, err := loadSigner(keyPath, passphrase)
	if err != nil {
		return "", err
	}

	in, err := os.Open(filepath.Clean(artifact))
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %w", ErrSign, err)
	}

	defer func() {
		_ = in.Close()
	}()

	sigPath := artifact + SignatureExt

	out, err := os.Create(filepath.Clean(sigPath))
	if err != nil {
		return "", fmt.Errorf("%w: create signature: %w", ErrSign, err)
	}

	if err = openpgp.ArmoredDetachSign(out, signer, in, nil); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("%w: %w", ErrSign, err)
	}

	if err = out.Close(); err != nil {
		return "", fmt.Errorf("%w: close signature: %w", ErrSign, err)
	}

	logger.InfoKV(ctx, "Signed package", "signature", sigPath, "key_id", signer.PrimaryKey.KeyIdString())

	return sigPath, nil
}

func loadSigner(keyPath string, passphrase []byte) (*openpgp.Entity, error) {
	f, err := os.Open(filepath.Clean(keyPath))
	if err != nil {
		return nil, fmt.Errorf("%w: open key: %w", ErrSign, err)
	}

	defer func() {
		_ = f.Close()
	}()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read key: %w", ErrSign, err)
	}

	for _, entity := range entities {
		if entity.PrivateKey == nil {
			continue
		}

		if entity.PrivateKey.Encrypted {
			if len(passphrase) == 0 {
				return nil, fmt.Errorf("%w: key %s is encrypted and no passphrase is set",
					ErrSign, entity.PrimaryKey.KeyIdString())
			}

			if err = entity.DecryptPrivateKeys(passphrase); err != nil {
				return nil, fmt.Errorf("%w: decrypt key: %w", ErrSign, err)
			}
		}

		return entity, nil
	}

	return nil, fmt.Errorf("%w: no private key in %s", ErrSign, keyPath)
}
