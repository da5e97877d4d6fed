package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Credentials holds the object-storage credentials read from the flat
// KEY=VALUE credentials file. They are handed to the storage client
// explicitly; the loader never exports them into the process environment.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsZero reports whether no credentials were loaded.
func (c Credentials) IsZero() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// Validate checks that both required keys are present.
func (c Credentials) Validate() error {
	if c.AccessKeyID == "" {
		return fmt.Errorf("credentials file is missing AWS_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("credentials file is missing AWS_SECRET_ACCESS_KEY")
	}
	return nil
}

// LoadCredentials parses the credentials file at path. The file uses a
// flat KEY=VALUE format:
//
//	AWS_ACCESS_KEY_ID=AKIA...
//	AWS_SECRET_ACCESS_KEY=...
//	AWS_SESSION_TOKEN=...   (optional)
func LoadCredentials(path string) (Credentials, error) {
	if _, err := os.Stat(path); err != nil {
		return Credentials{}, fmt.Errorf("credentials file not found at %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}

	creds := Credentials{
		AccessKeyID:     k.String("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: k.String("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    k.String("AWS_SESSION_TOKEN"),
	}

	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}
