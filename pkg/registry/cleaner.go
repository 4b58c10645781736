// Package registry removes container images left behind by a deployment.
// Image cleanup is out-of-band work during teardown: every failure is a
// warning, never a run failure.
package registry

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/rs/zerolog"

	"github.com/modelship/modelship/pkg/engine"
)

// ImageCleaner deletes the model images a deployment pushed to its
// repository.
type ImageCleaner struct {
	repo     name.Repository
	keychain authn.Keychain
	logger   zerolog.Logger
}

// Options configures an ImageCleaner.
type Options struct {
	// Repository is the image repository holding the deployment's model
	// images, e.g. "registry.example.com/fraud-model".
	Repository string

	// Keychain resolves registry credentials; nil uses the default
	// docker-config keychain.
	Keychain authn.Keychain

	Logger zerolog.Logger
}

// NewImageCleaner creates a cleaner for the given repository.
func NewImageCleaner(opts Options) (*ImageCleaner, error) {
	repo, err := name.NewRepository(opts.Repository)
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("invalid image repository %q", opts.Repository), err)
	}

	keychain := opts.Keychain
	if keychain == nil {
		keychain = authn.DefaultKeychain
	}

	return &ImageCleaner{
		repo:     repo,
		keychain: keychain,
		logger:   opts.Logger.With().Str("component", "image-cleaner").Logger(),
	}, nil
}

// Cleanup deletes every tag in the repository. Each failed deletion becomes
// one warning; an unreachable registry becomes a single warning.
func (c *ImageCleaner) Cleanup(ctx context.Context, deploymentID string) []string {
	tags, err := remote.List(c.repo,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain))
	if err != nil {
		return []string{fmt.Sprintf("failed to list images in %s: %v", c.repo, err)}
	}

	var warnings []string
	for _, tag := range tags {
		if err := c.deleteTag(ctx, tag); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to delete image %s:%s: %v", c.repo, tag, err))
			continue
		}
		c.logger.Info().
			Str("deployment", deploymentID).
			Str("image", c.repo.String()+":"+tag).
			Msg("Image deleted")
	}
	return warnings
}

// deleteTag removes one tag's manifest. Distribution registries only accept
// deletion by digest while others also untag by reference, so both forms
// are attempted; the tag is gone as long as one succeeds.
func (c *ImageCleaner) deleteTag(ctx context.Context, tag string) error {
	ref := c.repo.Tag(tag)

	desc, err := remote.Head(ref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain))
	if err != nil {
		return err
	}

	tagErr := remote.Delete(ref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain))
	digestErr := remote.Delete(c.repo.Digest(desc.Digest.String()),
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain))

	if tagErr != nil && digestErr != nil {
		return digestErr
	}
	return nil
}
