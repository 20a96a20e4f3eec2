package chyron

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"

	"github.com/snapcommit/snapcommit/internal/logger"
)

// ErrFontResolution is returned only when the default font itself cannot
// be resolved; a missing role-specific font falls back silently.
var ErrFontResolution = errors.New("chyron: font resolution failed")

// FontResolver maps a configured font name to a loadable font. The core
// depends only on this capability, not on any particular font service.
type FontResolver interface {
	Resolve(name string) (*truetype.Font, error)
}

// SystemFontResolver resolves font names against the system font
// directories, caching parsed fonts by name.
type SystemFontResolver struct {
	mu    sync.Mutex
	cache map[string]*truetype.Font
}

// NewSystemFontResolver returns a resolver backed by the host's font dirs.
func NewSystemFontResolver() *SystemFontResolver {
	return &SystemFontResolver{cache: make(map[string]*truetype.Font)}
}

// Resolve finds and parses the named font. Names are matched as TrueType
// file names; a bare family name has ".ttf" appended for the search.
func (r *SystemFontResolver) Resolve(name string) (*truetype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.cache[name]; ok {
		return f, nil
	}

	query := name
	if !strings.HasSuffix(strings.ToLower(query), ".ttf") {
		query += ".ttf"
	}

	path, err := findfont.Find(query)
	if err != nil {
		return nil, fmt.Errorf("chyron: font %q not found: %w", name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chyron: read font %s: %w", path, err)
	}

	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("chyron: parse font %s: %w", path, err)
	}

	logger.Debug("resolved font", "name", name, "path", path)
	r.cache[name] = f
	return f, nil
}

// resolveRole resolves the font for one text role, falling back to the
// default font name when the role has no configured font or its lookup
// fails. A default-font failure is terminal.
func resolveRole(resolver FontResolver, roleName, defaultName string) (*truetype.Font, error) {
	if roleName != "" && roleName != defaultName {
		if f, err := resolver.Resolve(roleName); err == nil {
			return f, nil
		}
		logger.Warn("role font not found, falling back to default",
			"font", roleName, "default", defaultName)
	}

	f, err := resolver.Resolve(defaultName)
	if err != nil {
		return nil, fmt.Errorf("%w: default font %q: %v", ErrFontResolution, defaultName, err)
	}
	return f, nil
}
