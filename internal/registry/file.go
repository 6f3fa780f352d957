package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

// SourcesFile is the on-disk source list:
//
//	[[sources]]
//	key = "ffzy"
//	name = "非凡影视"
//	api = "https://api.ffzyapi.com/api.php/provide/vod"
//	detail = "https://ffzy5.tv"
type SourcesFile struct {
	Sources []domain.SourceInput `toml:"sources"`
}

// LoadSourcesFile reads a TOML sources file. An empty path yields no sources.
func LoadSourcesFile(path string) ([]domain.SourceInput, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(string(raw))
}

// ParseSources decodes TOML source definitions and rejects duplicate keys.
func ParseSources(raw string) ([]domain.SourceInput, error) {
	var file SourcesFile
	meta, err := toml.Decode(raw, &file)
	if err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode sources file: unknown key %s", undecoded[0].String())
	}
	seen := make(map[string]struct{}, len(file.Sources))
	out := make([]domain.SourceInput, 0, len(file.Sources))
	for _, input := range file.Sources {
		input = input.Normalize()
		if _, dup := seen[input.Key]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrSourceExists, input.Key)
		}
		seen[input.Key] = struct{}{}
		out = append(out, input)
	}
	return out, nil
}

// EncodeSources renders inputs in the sources file format.
func EncodeSources(inputs []domain.SourceInput) (string, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(SourcesFile{Sources: inputs}); err != nil {
		return "", err
	}
	return b.String(), nil
}
