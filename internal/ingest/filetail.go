package ingest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"time"
)

// StartFileTail follows JSON Lines files of login events, reopening a file
// when it is truncated or rotated. StartAtEnd applies to the first open only;
// a replacement file is read from its beginning.
func StartFileTail(ctx context.Context, src Source) {
	current := src.Config.Get().Ingest.FileTail
	if !current.Enabled {
		if src.Logger != nil {
			src.Logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		path := path
		if src.Logger != nil {
			src.Logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		go tailFile(ctx, path, current.StartAtEnd, src)
	}
}

func tailFile(ctx context.Context, path string, startAtEnd bool, src Source) {
	var file *os.File
	var offset int64
	opened := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if src.Logger != nil {
					src.Logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd && !opened {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
			}
			opened = true
		}

		reader := bufio.NewReader(file)
		var pending []byte
		for {
			chunk, err := reader.ReadBytes('\n')
			pending = append(pending, chunk...)
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					if replaced(path, file, offset) {
						if src.Logger != nil {
							src.Logger.Info("tailed file replaced, reopening", "path", path)
						}
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if src.Logger != nil {
					src.Logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(pending))
			line := bytes.TrimSpace(pending)
			pending = pending[:0]
			if len(line) == 0 {
				continue
			}
			_ = src.Accept(ctx, line, "file_tail")
		}
	}
}

// replaced reports whether path was truncated below offset or now names a
// different file than the one open. A missing path is not a replacement yet.
func replaced(path string, file *os.File, offset int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() < offset {
		return true
	}
	open, err := file.Stat()
	return err == nil && !os.SameFile(info, open)
}
