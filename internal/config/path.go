package config

import (
	"os"
	"path/filepath"
	"strings"
)

func expandHome(p string) string {
	if !strings.HasPrefix(p, "$HOME") && !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	p = strings.TrimPrefix(strings.TrimPrefix(p, "$HOME"), "~")
	return filepath.Join(home, p)
}
