// Package secrets resolves datastore credentials from mounted secret files
// (Docker or Kubernetes secrets) or from ${VAR} references.
//
// Secret values are never logged; errors name the file or variable only.
package secrets

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agrilens/agrilens-go/internal/errors"
	"github.com/agrilens/agrilens-go/internal/logger"
)

const (
	// maxSecretFileSize bounds secret file reads. Secrets are tokens and
	// passwords, not documents.
	maxSecretFileSize = 64 * 1024
)

// varRef matches ${VAR} and ${VAR:-fallback}. A bare $ is left alone so DSNs
// and passwords containing it pass through untouched.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandString replaces ${VAR} and ${VAR:-fallback} references with values
// from the environment. An unset variable without a fallback is an error.
func ExpandString(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	expanded := varRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := varRef.FindStringSubmatch(ref)
		if value := os.Getenv(m[1]); value != "" {
			return value
		}
		if m[2] != "" {
			return m[3]
		}
		missing = append(missing, m[1])
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, dropping trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", fileError(err, cleanPath, "stat_secret")
	}
	if !info.Mode().IsRegular() {
		return "", fileError(errors.NewStd("secret path is not a regular file"), cleanPath, "stat_secret")
	}
	if info.Size() > maxSecretFileSize {
		return "", fileError(errors.Newf("secret file exceeds %d bytes", maxSecretFileSize).Build(), cleanPath, "stat_secret")
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("conf").Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fileError(err, cleanPath, "read_secret")
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(errors.NewStd("secret file is empty"), cleanPath, "read_secret")
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// ${VAR} references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

func fileError(err error, path, op string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("operation", op).
		Context("path", path).
		Build()
}
