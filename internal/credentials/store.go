// Package credentials looks up the secrets each output needs to reach its
// destination. Credentials are JSON documents keyed by service and
// descriptor; a dispatcher decodes them into its own struct and the document
// is checked against that struct's validate tags.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"alertprocessor/internal/types"
)

// Store loads the credentials for one output destination into dst.
//
// A missing document yields an AppError with ErrCodeCredentialsMissing; a
// document that does not decode into dst or fails validation yields
// ErrCodeCredentialsInvalid.
type Store interface {
	Load(ctx context.Context, service, descriptor string, dst any) error
}

var validate = validator.New()

// decode unmarshals raw into dst and validates the result.
func decode(service, descriptor string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return types.NewAppError(types.ErrCodeCredentialsInvalid,
			fmt.Sprintf("credentials for %s:%s are not valid JSON", service, descriptor), err)
	}
	if err := validate.Struct(dst); err != nil {
		return types.NewAppError(types.ErrCodeCredentialsInvalid,
			fmt.Sprintf("credentials for %s:%s failed validation", service, descriptor), err)
	}
	return nil
}

func missing(service, descriptor string, err error) error {
	return types.NewAppError(types.ErrCodeCredentialsMissing,
		fmt.Sprintf("no credentials for %s:%s", service, descriptor), err)
}

// StaticStore serves credentials from memory. Keys are "service:descriptor".
type StaticStore map[string]string

// Load implements Store.
func (s StaticStore) Load(_ context.Context, service, descriptor string, dst any) error {
	raw, ok := s[service+":"+descriptor]
	if !ok {
		return missing(service, descriptor, nil)
	}
	return decode(service, descriptor, []byte(raw), dst)
}

// EnvStore reads credentials from environment variables named
// OUTPUT_CREDENTIALS_<SERVICE>_<DESCRIPTOR>, upper-cased, with every
// character other than letters and digits replaced by an underscore.
type EnvStore struct {
	lookupEnv func(string) (string, bool)
}

// NewEnvStore creates an EnvStore that reads the process environment.
func NewEnvStore(lookupEnv func(string) (string, bool)) *EnvStore {
	return &EnvStore{lookupEnv: lookupEnv}
}

// EnvKey returns the variable EnvStore reads for service and descriptor.
func EnvKey(service, descriptor string) string {
	return "OUTPUT_CREDENTIALS_" + envSegment(service) + "_" + envSegment(descriptor)
}

func envSegment(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, s)
}

// Load implements Store.
func (s *EnvStore) Load(_ context.Context, service, descriptor string, dst any) error {
	raw, ok := s.lookupEnv(EnvKey(service, descriptor))
	if !ok || raw == "" {
		return missing(service, descriptor, nil)
	}
	return decode(service, descriptor, []byte(raw), dst)
}

var (
	_ Store = StaticStore(nil)
	_ Store = (*EnvStore)(nil)
)
