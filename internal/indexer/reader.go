package indexer

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/ragtriever/internal/models"
	"go.uber.org/zap"
)

// ReaderKind selects where document text comes from.
type ReaderKind string

const (
	// ReaderSimple decodes base64 file contents sent with the request.
	ReaderSimple ReaderKind = "simple"
	// ReaderPath reads a file or directory on the server's disk.
	ReaderPath ReaderKind = "path"
)

// ReaderKinds lists every reader variant in display order.
var ReaderKinds = []ReaderKind{ReaderSimple, ReaderPath}

// ReadSimple decodes base64 file contents paired by index with fileNames. Files with a
// disallowed extension or invalid UTF-8 are skipped with a warning.
func ReadSimple(fileBytes, fileNames []string, allowedExts []string, logger *zap.Logger) ([]*models.DocumentInput, error) {
	if len(fileBytes) != len(fileNames) {
		return nil, fmt.Errorf("got %d files but %d file names", len(fileBytes), len(fileNames))
	}
	var inputs []*models.DocumentInput
	for i, encoded := range fileBytes {
		name := fileNames[i]
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(name), allowedExts) {
			logger.Warn("skipping file with unsupported extension", zap.String("file", name))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			logger.Warn("skipping file with invalid base64 content", zap.String("file", name), zap.Error(err))
			continue
		}
		if !utf8.Valid(data) {
			logger.Warn("skipping file that is not valid UTF-8", zap.String("file", name))
			continue
		}
		inputs = append(inputs, &models.DocumentInput{Name: name, Content: string(data)})
	}
	return inputs, nil
}

// ReadPath reads a regular file, or every matching regular file under a directory.
// Documents read from disk are named by their base name and linked to their absolute path.
func ReadPath(path string, allowedExts []string, logger *zap.Logger) ([]*models.DocumentInput, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		in, err := readFile(absPath, allowedExts)
		if err != nil {
			return nil, err
		}
		return []*models.DocumentInput{in}, nil
	}

	var inputs []*models.DocumentInput
	err = filepath.WalkDir(absPath, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(p), allowedExts) {
			return nil
		}
		in, err := readFile(p, allowedExts)
		if err != nil {
			logger.Warn("skipping file", zap.String("path", p), zap.Error(err))
			return nil
		}
		inputs = append(inputs, in)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absPath, err)
	}
	return inputs, nil
}

func readFile(absPath string, allowedExts []string) (*models.DocumentInput, error) {
	if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(absPath), allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	// Resolve symlinks so only regular files are read
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", absPath)
	}
	return &models.DocumentInput{
		Name:    filepath.Base(absPath),
		Link:    absPath,
		Content: string(data),
	}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
