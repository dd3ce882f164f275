package gstreamer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smazurov/kvsnode/internal/credentials"
)

// WriteCredentialFile writes tok in the kvssink credential-path format
//
//	CREDENTIALS <access key id> <expiration> <secret key> <session token>
//
// to a new 0600 file in dir (os.TempDir when empty) and returns its path.
func WriteCredentialFile(dir string, tok credentials.SessionToken) (string, error) {
	for _, field := range []string{tok.AccessKeyID, tok.SecretAccessKey, tok.Token} {
		if field == "" || strings.ContainsAny(field, " \t\r\n") {
			return "", fmt.Errorf("%w: credential field is empty or contains whitespace", ErrInvalidParams)
		}
	}

	f, err := os.CreateTemp(dir, "kvs-credentials-*")
	if err != nil {
		return "", fmt.Errorf("create credential file: %w", err)
	}
	path := f.Name()

	line := fmt.Sprintf("CREDENTIALS %s %s %s %s\n",
		tok.AccessKeyID,
		tok.Expiration.UTC().Format(time.RFC3339),
		tok.SecretAccessKey,
		tok.Token,
	)

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write credential file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close credential file: %w", err)
	}
	return path, nil
}
