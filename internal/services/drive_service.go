// ./astra-backend/internal/services/drive_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DrivePublisher uploads finished audiobooks to a Google Drive folder as
// private files.
type DrivePublisher struct {
	srv      *drive.Service
	folderID string
	log      zerolog.Logger
}

// NewDrivePublisher builds a Drive client from a service account JSON blob,
// as stored in the COGNI_BACKEND environment variable.
func NewDrivePublisher(ctx context.Context, credentialsJSON, folderID string, log zerolog.Logger) (*DrivePublisher, error) {
	log = log.With().Str("component", "drive").Logger()
	log.Info().Msg("initializing")

	if credentialsJSON == "" {
		return nil, errors.New("drive credentials are empty")
	}
	rectified, err := RectifyPrivateKey([]byte(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("unable to rectify client secret: %w", err)
	}

	config, err := google.JWTConfigFromJSON(rectified, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	log.Info().Msg("Google Drive client ready")
	return &DrivePublisher{srv: srv, folderID: folderID, log: log}, nil
}

// RectifyPrivateKey turns escaped "\n" sequences in a service account's
// private_key back into newlines. Keys pasted into env vars arrive escaped.
func RectifyPrivateKey(credentialsJSON []byte) ([]byte, error) {
	var creds map[string]interface{}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return nil, err
	}
	if key, ok := creds["private_key"].(string); ok {
		creds["private_key"] = strings.ReplaceAll(key, "\\n", "\n")
	}
	return json.Marshal(creds)
}

// Publish uploads the file and returns its Drive file ID.
func (p *DrivePublisher) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	meta := &drive.File{Name: filepath.Base(localPath), MimeType: "audio/wav"}
	if p.folderID != "" {
		meta.Parents = []string{p.folderID}
	}

	file, err := p.srv.Files.Create(meta).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("could not create file: %w", err)
	}
	p.log.Info().Str("file_id", file.Id).Str("name", meta.Name).Msg("private file uploaded")
	return file.Id, nil
}

// Remove deletes a file by its Drive ID.
func (p *DrivePublisher) Remove(ctx context.Context, fileID string) error {
	if err := p.srv.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		p.log.Warn().Err(err).Str("file_id", fileID).Msg("failed to delete file")
		return err
	}
	p.log.Info().Str("file_id", fileID).Msg("deleted file")
	return nil
}
