package pkgforge

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// HashType names a supported source digest algorithm.
type HashType string

const (
	HashSha1   HashType = "sha1"
	HashSha256 HashType = "sha256"
	HashSha512 HashType = "sha512"
)

func (t HashType) newHasher() (hash.Hash, error) {
	switch t {
	case HashSha1:
		return sha1.New(), nil
	case HashSha256:
		return sha256.New(), nil
	case HashSha512:
		return sha512.New(), nil
	default:
		return nil, errors.Errorf("unsupported hash type %q", t)
	}
}

// SourceHash is a tagged digest: an algorithm plus the expected lowercase
// hex value. The value is kept as a string (rather than a parsed
// digest.Digest) because the on-disk cache path embeds the raw hash value,
// not the "<algo>:<hex>" form that digest.Digest.String renders.
type SourceHash struct {
	Type  HashType `toml:"type"`
	Value string   `toml:"hash"`
}

// Digest renders the hash as an OCI-style "<algorithm>:<hex>" digest.Digest,
// validating it against the rules of that package.
func (h SourceHash) Digest() (digest.Digest, error) {
	var alg digest.Algorithm
	switch h.Type {
	case HashSha1:
		alg = digest.SHA1
	case HashSha256:
		alg = digest.SHA256
	case HashSha512:
		alg = digest.SHA512
	default:
		return "", errors.Errorf("unsupported hash type %q", h.Type)
	}
	candidate := digest.NewDigestFromEncoded(alg, h.Value)
	if err := candidate.Validate(); err != nil {
		return "", errors.Wrapf(err, "invalid %s digest value %q", alg, h.Value)
	}
	return candidate, nil
}

// VerifyReader streams r through the selected hash algorithm and compares
// the resulting lowercase hex digest against Value.
func (h SourceHash) VerifyReader(r io.Reader) error {
	hasher, err := h.Type.newHasher()
	if err != nil {
		return err
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return errors.Wrap(err, "reading source contents")
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != h.Value {
		return errors.Wrapf(ErrHashMismatch, "expected %s got %s", h.Value, got)
	}
	return nil
}

// Source is a named external artifact: a fetch URL paired with the digest
// it is expected to produce. DownloadManually suppresses automated
// download/link-check but the source still participates in verification
// once present on disk.
type Source struct {
	URL              string     `toml:"url"`
	Hash             SourceHash `toml:"hash"`
	DownloadManually bool       `toml:"download_manually,omitempty"`
}
