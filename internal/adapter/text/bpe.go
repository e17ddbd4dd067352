package text

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// defaultBPETimeout applies when no download timeout is configured.
const defaultBPETimeout = 10 * time.Second

// maxBPESize caps a downloaded encoding file; cl100k_base is about 1.7 MiB.
const maxBPESize = 16 << 20

// bpeLoader implements tiktoken.BpeLoader with a bounded download and an
// on-disk cache, so a missing network fails fast instead of hanging.
type bpeLoader struct {
	client   *http.Client
	cacheDir string
	logger   *slog.Logger
}

func newBPELoader(cacheDir string, timeout time.Duration, logger *slog.Logger) *bpeLoader {
	if cacheDir == "" {
		cacheDir = os.Getenv("TIKTOKEN_CACHE_DIR")
	}
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cacheDir = filepath.Join(base, "websearch", "tiktoken")
	}
	if timeout <= 0 {
		timeout = defaultBPETimeout
	}
	return &bpeLoader{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// LoadTiktokenBpe returns the token ranks stored in file, a path or URL.
func (l *bpeLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	data, err := l.read(file)
	if err != nil {
		return nil, err
	}
	return parseBPE(data)
}

func (l *bpeLoader) read(file string) ([]byte, error) {
	if !strings.HasPrefix(file, "http://") && !strings.HasPrefix(file, "https://") {
		return os.ReadFile(file)
	}

	sum := sha1.Sum([]byte(file))
	cached := filepath.Join(l.cacheDir, hex.EncodeToString(sum[:]))
	if data, err := os.ReadFile(cached); err == nil {
		return data, nil
	}

	resp, err := l.client.Get(file)
	if err != nil {
		return nil, fmt.Errorf("fetch encoding: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch encoding: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBPESize))
	if err != nil {
		return nil, fmt.Errorf("read encoding: %w", err)
	}

	if err := os.MkdirAll(l.cacheDir, 0o755); err == nil {
		err = os.WriteFile(cached, data, 0o644)
		if err != nil {
			l.logger.Warn("encoding not cached", "path", cached, "error", err)
		}
	}
	return data, nil
}

// parseBPE reads "<base64 token> <rank>" lines.
func parseBPE(data []byte) (map[string]int, error) {
	ranks := make(map[string]int)
	for i, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		tok, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("encoding line %d: missing rank", i+1)
		}
		b, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("encoding line %d: %w", i+1, err)
		}
		r, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("encoding line %d: %w", i+1, err)
		}
		ranks[string(b)] = r
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("encoding file is empty")
	}
	return ranks, nil
}
