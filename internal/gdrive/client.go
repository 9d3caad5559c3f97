// Package gdrive ingests recordings from a Google Drive folder and can host
// the note vault inside Drive.
package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/services"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	listPageSize   = 100
)

// RemoteFile describes one recording discovered in the Drive input folder.
type RemoteFile struct {
	ID           string
	Name         string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
}

// Client wraps the Drive API with rate limiting and the folder conventions
// this daemon relies on.
type Client struct {
	svc     *drive.Service
	section config.Drive
	limiter *rateLimiter
	logger  *slog.Logger
}

// NewClient authenticates against Drive using the configured OAuth client
// credentials and stored token. The daemon never runs an interactive flow;
// a missing token is a configuration error telling the user to run the
// authorization once by hand.
func NewClient(ctx context.Context, section config.Drive, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ts, err := tokenSource(ctx, section)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "drive-init", "create drive service", err)
	}
	return &Client{
		svc:     svc,
		section: section,
		limiter: newRateLimiter(section.RequestsPerSecond),
		logger:  logging.NewComponentLogger(logger, "gdrive"),
	}, nil
}

func tokenSource(ctx context.Context, section config.Drive) (oauth2.TokenSource, error) {
	credentials, err := os.ReadFile(section.CredentialsFile)
	if err != nil {
		return nil, services.New(services.ErrConfiguration, "", "drive-auth",
			"read Drive credentials file", err).
			WithContext("credentials_file", section.CredentialsFile)
	}
	oauthCfg, err := google.ConfigFromJSON(credentials, drive.DriveScope)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "drive-auth", "parse Drive credentials", err)
	}

	tokenData, err := os.ReadFile(section.TokenFile)
	if err != nil {
		return nil, services.New(services.ErrConfiguration, "", "drive-auth",
			"read Drive token file; authorize with `scribe drive auth` first", err).
			WithContext("token_file", section.TokenFile)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "drive-auth", "parse Drive token", err)
	}
	return oauthCfg.TokenSource(ctx, &token), nil
}

// ListNewRecordings returns non-trashed media files in the input folder
// modified after since.
func (c *Client) ListNewRecordings(ctx context.Context, since time.Time) ([]RemoteFile, error) {
	query := fmt.Sprintf(
		"'%s' in parents and (mimeType contains 'video/' or mimeType contains 'audio/') and trashed = false and modifiedTime > '%s'",
		c.section.FolderID, since.UTC().Format(time.RFC3339))

	var files []RemoteFile
	pageToken := ""
	for {
		if err := c.limiter.wait(ctx); err != nil {
			return nil, err
		}
		call := c.svc.Files.List().
			Q(query).
			PageSize(listPageSize).
			Fields("nextPageToken, files(id, name, size, modifiedTime, mimeType)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		result, err := call.Do()
		if err != nil {
			return nil, c.classify("list recordings", err)
		}
		for _, f := range result.Files {
			modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			files = append(files, RemoteFile{
				ID:           f.Id,
				Name:         f.Name,
				MimeType:     f.MimeType,
				Size:         f.Size,
				ModifiedTime: modified,
			})
		}
		if result.NextPageToken == "" {
			return files, nil
		}
		pageToken = result.NextPageToken
	}
}

// Download streams a remote recording into destDir and returns the local
// path.
func (c *Client) Download(ctx context.Context, file RemoteFile, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorage, "", "drive-download", "create download directory", err)
	}
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.svc.Files.Get(file.ID).Context(ctx).Download()
	if err != nil {
		return "", c.classify("download recording", err)
	}
	defer resp.Body.Close()

	destPath := filepath.Join(destDir, file.Name)
	tmp, err := os.CreateTemp(destDir, ".scribe-download-*")
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "", "drive-download", "create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", services.Wrap(services.ErrNetwork, "", "drive-download", "stream recording", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", services.Wrap(services.ErrStorage, "", "drive-download", "close download", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return "", services.Wrap(services.ErrStorage, "", "drive-download", "finalize download", err)
	}

	c.logger.Info("recording downloaded",
		logging.String("name", file.Name),
		logging.Int64("bytes", file.Size))
	return destPath, nil
}

// MoveToProcessed reparents a completed recording into the processed
// subfolder so it is not picked up again.
func (c *Client) MoveToProcessed(ctx context.Context, fileID string) error {
	if strings.TrimSpace(c.section.ProcessedFolderID) == "" {
		return nil
	}
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	current, err := c.svc.Files.Get(fileID).Fields("parents").Context(ctx).Do()
	if err != nil {
		return c.classify("read file parents", err)
	}
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	_, err = c.svc.Files.Update(fileID, nil).
		AddParents(c.section.ProcessedFolderID).
		RemoveParents(strings.Join(current.Parents, ",")).
		Fields("id, parents").
		Context(ctx).
		Do()
	if err != nil {
		return c.classify("move to processed", err)
	}
	return nil
}

// EnsureFolder returns the ID of a named child folder, creating it when it
// does not exist.
func (c *Client) EnsureFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}
	query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		parentID, strings.ReplaceAll(name, "'", "\\'"), folderMimeType)
	result, err := c.svc.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", c.classify("find folder", err)
	}
	if len(result.Files) > 0 {
		return result.Files[0].Id, nil
	}

	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}
	folder, err := c.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", c.classify("create folder", err)
	}
	c.logger.Info("drive folder created", logging.String("name", name))
	return folder.Id, nil
}

// FindFile returns the ID of a file by name within a folder, or "" when
// absent.
func (c *Client) FindFile(ctx context.Context, name, parentID string) (string, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return "", err
	}
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		parentID, strings.ReplaceAll(name, "'", "\\'"))
	result, err := c.svc.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", c.classify("find file", err)
	}
	if len(result.Files) == 0 {
		return "", nil
	}
	return result.Files[0].Id, nil
}

// Upload creates or replaces a file in a folder.
func (c *Client) Upload(ctx context.Context, name, parentID string, content io.Reader) error {
	existingID, err := c.FindFile(ctx, name, parentID)
	if err != nil {
		return err
	}
	if err := c.limiter.wait(ctx); err != nil {
		return err
	}
	if existingID != "" {
		_, err = c.svc.Files.Update(existingID, &drive.File{}).Media(content).Context(ctx).Do()
	} else {
		_, err = c.svc.Files.Create(&drive.File{Name: name, Parents: []string{parentID}}).
			Media(content).Context(ctx).Do()
	}
	if err != nil {
		return c.classify("upload file", err)
	}
	return nil
}

// DownloadContent fetches a file's bytes by ID.
func (c *Client) DownloadContent(ctx context.Context, fileID string) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, c.classify("download file", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// classify maps Drive API failures onto the shared error kinds and feeds
// 429 backoff hints to the rate limiter.
func (c *Client) classify(operation string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			c.limiter.recordRateLimit(retryAfterFromHeader(apiErr.Header))
			return services.Wrap(services.ErrNetwork, "", operation, "drive rate limited", err)
		case apiErr.Code == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "", operation, "drive object not found", err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "", operation, "drive authorization failed", err)
		case apiErr.Code >= 500:
			return services.Wrap(services.ErrTransient, "", operation, "drive server error", err)
		}
	}
	return services.Wrap(services.ErrNetwork, "", operation, "drive request failed", err)
}

func retryAfterFromHeader(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	return services.ParseRetryAfter(header.Get("Retry-After"))
}
