// Package identity derives the composite keys that address scoped graph
// nodes. A key is "repository:branch:localID"; no segment may be empty or
// contain the separator, so every key parses back to exactly one triple.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins key segments.
const Separator = ":"

var (
	ErrInvalidSegment = errors.New("invalid key segment")
	ErrInvalidKey     = errors.New("invalid graph-unique id")
)

// Key is a parsed graph-unique id.
type Key struct {
	Repository string
	Branch     string
	LocalID    string
}

func (k Key) String() string {
	return k.Repository + Separator + k.Branch + Separator + k.LocalID
}

// DeriveKey returns the graph-unique id for localID within repository and
// branch.
func DeriveKey(repository, branch, localID string) (string, error) {
	if err := checkSegment("repository", repository); err != nil {
		return "", err
	}
	if err := checkSegment("branch", branch); err != nil {
		return "", err
	}
	if err := checkSegment("id", localID); err != nil {
		return "", err
	}
	return Key{Repository: repository, Branch: branch, LocalID: localID}.String(), nil
}

// MustDeriveKey is DeriveKey for inputs known to be valid. It panics otherwise.
func MustDeriveKey(repository, branch, localID string) string {
	key, err := DeriveKey(repository, branch, localID)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseKey splits a graph-unique id into its segments.
func ParseKey(key string) (Key, error) {
	parts := strings.Split(key, Separator)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	k := Key{Repository: parts[0], Branch: parts[1], LocalID: parts[2]}
	for _, seg := range parts {
		if strings.TrimSpace(seg) == "" {
			return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return k, nil
}

// RepositoryKey returns the primary key of a Repository node.
func RepositoryKey(name, branch string) (string, error) {
	if err := checkSegment("repository", name); err != nil {
		return "", err
	}
	if err := checkSegment("branch", branch); err != nil {
		return "", err
	}
	return name + Separator + branch, nil
}

// ValidateScope checks a repository/branch pair without deriving a key.
func ValidateScope(repository, branch string) error {
	_, err := RepositoryKey(repository, branch)
	return err
}

func checkSegment(label, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidSegment, label)
	}
	if strings.Contains(value, Separator) {
		return fmt.Errorf("%w: %s %q contains %q", ErrInvalidSegment, label, value, Separator)
	}
	return nil
}
