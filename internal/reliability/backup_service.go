package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/database"
)

const (
	backupPrefix      = "symrefresh-backup-"
	backupSuffix      = ".tar.gz"
	backupTimeLayout  = "2006-01-02-150405"
	metadataFilename  = "backup-metadata.json"
	minBackupsToKeep  = 3
	metadataVersion   = "1"
	registryDBArchive = "registry.db"
)

// BackupMetadata describes the contents of one archive.
type BackupMetadata struct {
	Files     []FileMetadata `json:"files"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
}

// FileMetadata describes one file inside an archive.
type FileMetadata struct {
	Checksum  string `json:"checksum"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
}

// BackupInfo is a backup found in the bucket.
type BackupInfo struct {
	AgeHours  int64     `json:"age_hours"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// BackupService snapshots the registry and run-state files and ships them
// to an object store.
type BackupService struct {
	store      ObjectStore
	files      []string
	db         *database.DB
	stagingDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a backup service. files are copied as-is and
// skipped when missing. When db is non-nil the SQLite registry is copied
// with VACUUM INTO so the snapshot is consistent.
func NewBackupService(store ObjectStore, files []string, db *database.DB, stagingDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		store:      store,
		files:      files,
		db:         db,
		stagingDir: stagingDir,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload builds an archive and uploads it. It returns the object key.
func (s *BackupService) CreateAndUpload(ctx context.Context) (string, error) {
	startTime := s.now()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	workDir, err := os.MkdirTemp(s.stagingDir, "backup-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	key := backupPrefix + startTime.UTC().Format(backupTimeLayout) + backupSuffix
	archivePath := filepath.Join(workDir, key)

	if err := s.createArchive(ctx, archivePath, workDir, startTime); err != nil {
		return "", err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		return "", err
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Dur("duration", s.now().Sub(startTime)).
		Msg("Backup uploaded")

	return key, nil
}

// createArchive writes a tar.gz holding every source file plus metadata.
func (s *BackupService) createArchive(ctx context.Context, archivePath, workDir string, timestamp time.Time) error {
	type entry struct {
		path string
		name string
	}
	var entries []entry

	for _, path := range s.files {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Debug().Str("path", path).Msg("Backup source missing, skipping")
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		entries = append(entries, entry{path: path, name: filepath.Base(path)})
	}

	if s.db != nil {
		dbCopy := filepath.Join(workDir, registryDBArchive)
		if _, err := s.db.Conn().ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dbCopy)); err != nil {
			return fmt.Errorf("VACUUM INTO failed: %w", err)
		}
		entries = append(entries, entry{path: dbCopy, name: registryDBArchive})
	}

	if len(entries) == 0 {
		return fmt.Errorf("nothing to back up")
	}

	metadata := BackupMetadata{
		Files:     make([]FileMetadata, 0, len(entries)),
		Timestamp: timestamp.UTC(),
		Version:   metadataVersion,
	}
	for _, e := range entries {
		fm, err := describeFile(e.path, e.name)
		if err != nil {
			return err
		}
		metadata.Files = append(metadata.Files, fm)
	}

	metadataPath := filepath.Join(workDir, metadataFilename)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	entries = append(entries, entry{path: metadataPath, name: metadataFilename})

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		if err := addFileToArchive(tarWriter, e.path, e.name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", e.name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return file.Close()
}

// ListBackups returns the backups in the bucket, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		timestamp, ok := parseBackupKey(*obj.Key)
		if !ok {
			s.log.Warn().Str("key", *obj.Key).Msg("Unrecognised object in backup bucket")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			AgeHours:  int64(now.Sub(timestamp).Hours()),
			Filename:  *obj.Key,
			SizeBytes: size,
			Timestamp: timestamp,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest three. A retention of 0 keeps everything. It returns the
// number of deleted backups.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if retentionDays <= 0 || len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("key", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

func parseBackupKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, backupPrefix) || !strings.HasSuffix(key, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), backupSuffix)
	t, err := time.Parse(backupTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func describeFile(path, name string) (FileMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileMetadata{}, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to checksum %s: %w", name, err)
	}

	return FileMetadata{
		Checksum:  fmt.Sprintf("sha256:%x", hash.Sum(nil)),
		Filename:  name,
		SizeBytes: size,
	}, nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
