package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxrelay/voxrelay/pkg/audio"
)

// chunkDumper writes every received audio chunk to a per-connection directory
// as numbered WAV files. Debugging aid only; write failures are logged and
// otherwise ignored so they never disturb the audio path.
type chunkDumper struct {
	dir  string
	next int
}

// newChunkDumper creates the dump directory for one connection.
func newChunkDumper(baseDir, connID string) (*chunkDumper, error) {
	dir := filepath.Join(baseDir, connID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("server: create dump dir: %w", err)
	}
	return &chunkDumper{dir: dir}, nil
}

// write stores one chunk as NNNNN.wav. Bare PCM chunks get a WAV header so
// every dumped file is independently playable.
func (d *chunkDumper) write(chunk []byte) {
	path := filepath.Join(d.dir, fmt.Sprintf("%05d.wav", d.next))
	d.next++

	data := chunk
	if !audio.IsWAVBlock(chunk) {
		data = audio.AppendWAVHeader(nil, audio.DefaultFormat, len(chunk))
		data = append(data, chunk...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("audio dump write failed", "path", path, "err", err)
	}
}

// close logs the number of chunks written.
func (d *chunkDumper) close() {
	slog.Debug("audio dump complete", "dir", d.dir, "chunks", d.next)
}
