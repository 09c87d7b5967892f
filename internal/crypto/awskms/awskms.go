// Package awskms implements the encryption gateway on AWS Key Management
// Service. The logical path is passed as KMS encryption context, so KMS
// itself refuses to decrypt ciphertext under a different path.
package awskms

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/fieldju/cerberus/internal/crypto"
)

// encryptionContextKey is the KMS encryption-context key carrying the path.
const encryptionContextKey = "path"

// kmsClient is the subset of the KMS API the gateway needs. Narrowed for
// mocking in tests.
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Gateway implements crypto.Gateway backed by an AWS KMS customer key.
type Gateway struct {
	client kmsClient
	keyID  string
}

// Config configures the KMS gateway.
type Config struct {
	// KeyID is the KMS key id, ARN, or alias used for all operations.
	KeyID string
	// Region overrides the AWS region. Empty uses the default chain.
	Region string
	// AWSConfig is an optional pre-built AWS config. When set, Region is
	// ignored.
	AWSConfig *aws.Config
}

// New creates a KMS-backed gateway.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("kms key id is required")
	}

	var awsCfg aws.Config
	if cfg.AWSConfig != nil {
		awsCfg = *cfg.AWSConfig
	} else {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
	}

	return &Gateway{
		client: kms.NewFromConfig(awsCfg),
		keyID:  cfg.KeyID,
	}, nil
}

// Encrypt encrypts the plaintext under the gateway key with the path bound
// as encryption context. Returns base64 of the KMS ciphertext blob.
func (g *Gateway) Encrypt(ctx context.Context, plaintext, path string) (string, error) {
	out, err := g.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(g.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: map[string]string{encryptionContextKey: path},
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt for path %q: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt decrypts the ciphertext with the same path-bound encryption
// context. KMS rejects a context mismatch, which surfaces as ErrDecrypt.
func (g *Gateway) Decrypt(ctx context.Context, ciphertext, path string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext encoding", crypto.ErrDecrypt)
	}
	out, err := g.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(g.keyID),
		CiphertextBlob:    blob,
		EncryptionContext: map[string]string{encryptionContextKey: path},
	})
	if err != nil {
		return "", fmt.Errorf("%w: path %q: %v", crypto.ErrDecrypt, path, err)
	}
	return string(out.Plaintext), nil
}

// compile-time interface check
var _ crypto.Gateway = (*Gateway)(nil)
