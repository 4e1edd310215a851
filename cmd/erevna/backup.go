package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/erevna/internal/config"
)

func runBackup(args []string) error {
	var outputPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}
	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: erevna backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	dirs := []string{filepath.Dir(cfg.Store.Path), cfg.Reports.Dir}
	count, err := writeArchive(f, dirs)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

// writeArchive streams the given directories into a zstd-compressed tar.
// Entry names are the original paths with the leading separator stripped, so
// a restore into "/" reproduces the layout.
func writeArchive(out io.Writer, dirs []string) (int, error) {
	zw, err := zstd.NewWriter(out)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	count := 0
	seen := map[string]bool{}
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true

		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}

			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return fmt.Errorf("tar header %s: %w", path, err)
			}
			hdr.Name = strings.TrimPrefix(filepath.ToSlash(path), "/")

			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("write tar header: %w", err)
			}

			src, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer src.Close()
			if _, err := io.Copy(tw, src); err != nil {
				return fmt.Errorf("write tar data: %w", err)
			}
			count++
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	if err := tw.Close(); err != nil {
		return count, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("close zstd: %w", err)
	}
	return count, nil
}

func runRestore(args []string) error {
	var inputPath string
	overwrite := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}
	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: erevna restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	count, skipped, err := extractArchive(f, "/", overwrite)
	if err != nil {
		return err
	}

	fmt.Printf("Restore complete: %d files restored, %d skipped\n", count, skipped)
	if skipped > 0 && !overwrite {
		fmt.Println("Existing files were kept; pass -overwrite to replace them.")
	}
	return nil
}

// extractArchive unpacks a backup archive under destRoot. Existing files are
// skipped unless overwrite is set. Entries that would escape destRoot are
// rejected.
func extractArchive(in io.Reader, destRoot string, overwrite bool) (restored, skipped int, err error) {
	zr, err := zstd.NewReader(in)
	if err != nil {
		return 0, 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, skipped, fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		target := filepath.Join(destRoot, filepath.FromSlash(hdr.Name))
		rel, err := filepath.Rel(destRoot, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return restored, skipped, fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}

		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				skipped++
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return restored, skipped, fmt.Errorf("create dir for %s: %w", target, err)
		}

		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return restored, skipped, fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := io.Copy(dst, tr); err != nil {
			dst.Close()
			return restored, skipped, fmt.Errorf("write %s: %w", target, err)
		}
		if err := dst.Close(); err != nil {
			return restored, skipped, fmt.Errorf("close %s: %w", target, err)
		}
		restored++
	}

	return restored, skipped, nil
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
