// ./astra-backend/internal/services/mega_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/t3rm1n4l/go-mega"
)

// MegaFolder is the directory in the MEGA root that holds audiobooks.
const MegaFolder = "Astra Audiobooks"

// MegaPublisher uploads finished audiobooks to a MEGA account.
type MegaPublisher struct {
	mu     sync.Mutex
	client *mega.Mega
	folder *mega.Node
	log    zerolog.Logger
}

// NewMegaPublisher logs into MEGA and makes sure the audiobook folder exists.
func NewMegaPublisher(email, password string, log zerolog.Logger) (*MegaPublisher, error) {
	log = log.With().Str("component", "mega").Logger()
	log.Info().Msg("initializing")

	if email == "" || password == "" {
		return nil, errors.New("MEGA_EMAIL and MEGA_PASSWORD must be set")
	}
	m := mega.New()
	if err := m.Login(email, password); err != nil {
		return nil, fmt.Errorf("failed to log into MEGA: %w", err)
	}

	p := &MegaPublisher{client: m, log: log}
	folder, err := p.findOrCreateFolder()
	if err != nil {
		return nil, err
	}
	p.folder = folder
	log.Info().Msg("logged into MEGA")
	return p, nil
}

// findOrCreateFolder finds MegaFolder in the MEGA root, or creates it.
func (p *MegaPublisher) findOrCreateFolder() (*mega.Node, error) {
	root := p.client.FS.GetRoot()
	nodes, err := p.client.FS.GetChildren(root)
	if err != nil {
		return nil, fmt.Errorf("could not get root children from MEGA: %w", err)
	}
	for _, node := range nodes {
		if node.GetType() == mega.FOLDER && node.GetName() == MegaFolder {
			p.log.Debug().Msg("found existing audiobook folder")
			return node, nil
		}
	}

	p.log.Info().Str("folder", MegaFolder).Msg("audiobook folder not found, creating it")
	node, err := p.client.CreateDir(MegaFolder, root)
	if err != nil {
		return nil, fmt.Errorf("failed to create %q folder in MEGA: %w", MegaFolder, err)
	}
	return node, nil
}

// Publish uploads the file and returns the node hash. The MEGA client has no
// context support, so ctx is only checked before the upload starts.
func (p *MegaPublisher) Publish(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	node, err := p.client.UploadFile(localPath, p.folder, filepath.Base(localPath), nil)
	if err != nil {
		return "", fmt.Errorf("upload to MEGA: %w", err)
	}
	p.log.Info().Str("hash", node.GetHash()).Msg("uploaded audiobook")
	return node.GetHash(), nil
}

// Remove moves the node with the given hash to the MEGA trash.
func (p *MegaPublisher) Remove(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	node := p.client.FS.HashLookup(hash)
	if node == nil {
		p.log.Warn().Str("hash", hash).Msg("node already gone")
		return nil
	}
	if err := p.client.Delete(node, false); err != nil {
		return fmt.Errorf("delete MEGA node %s: %w", hash, err)
	}
	return nil
}
