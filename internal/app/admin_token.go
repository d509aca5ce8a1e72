package app

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const adminTokenFile = "admin.token"

func adminTokenPath(dataDir string) string {
	return filepath.Join(dataDir, adminTokenFile)
}

// loadOrInitAdminToken reads the token guarding write routes, creating one
// on first start. A preset token wins over the file.
func loadOrInitAdminToken(dataDir, preset string) (token string, created bool, err error) {
	if preset != "" {
		return preset, false, nil
	}
	path := adminTokenPath(dataDir)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if token = strings.TrimSpace(string(data)); token != "" {
			return token, false, nil
		}
	case !os.IsNotExist(err):
		return "", false, errors.Wrap(err, "read admin token")
	}

	if token, err = generateAdminToken(); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", false, errors.Wrap(err, "write admin token")
	}
	return token, true, nil
}

func generateAdminToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate admin token")
	}
	return hex.EncodeToString(buf), nil
}
