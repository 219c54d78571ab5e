// Package fileutil holds the file copying, moving and fingerprinting helpers
// shared by the pipeline stages and storage backends.
package fileutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// hashChunkSize is the read size used when fingerprinting video files.
const hashChunkSize = 4096

// CopyFile copies src to dst (mode 0644), creating dst's directory.
func CopyFile(src, dst string) error {
	_, err := copyAtomic(src, dst, false)
	return err
}

// CopyFileVerified copies src to dst and then re-reads dst from disk,
// comparing its size and SHA-256 with what was read from src. dst is left
// absent when they differ.
func CopyFileVerified(src, dst string) error {
	want, err := copyAtomic(src, dst, true)
	if err != nil {
		return err
	}
	got, err := HashFile(context.Background(), dst)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if got != want {
		_ = os.Remove(dst)
		return fmt.Errorf("verify copy: %s does not match %s", dst, src)
	}
	return nil
}

// copyAtomic writes src into a temporary sibling of dst and renames it into
// place. With hash set it returns the hex SHA-256 of the bytes copied.
func copyAtomic(src, dst string, hash bool) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	sum := sha256.New()
	var w io.Writer = tmp
	if hash {
		w = io.MultiWriter(tmp, sum)
	}
	n, err := io.Copy(w, in)
	if err != nil {
		return "", err
	}
	if n != info.Size() {
		return "", fmt.Errorf("copy %s: read %d of %d bytes", src, n, info.Size())
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	committed = true
	if !hash {
		return "", nil
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// HashFile returns the lowercase hex SHA-256 of the file, reading it in
// 4096-byte chunks and checking ctx between chunks.
func HashFile(ctx context.Context, path string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		sum.Write(buf[:n])
		if err == io.EOF {
			return hex.EncodeToString(sum.Sum(nil)), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// FilesExist reports whether every non-blank path is a regular file.
func FilesExist(paths ...string) bool {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// MoveFile renames src to dst, falling back to a verified copy when the
// rename crosses filesystems.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFileVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
