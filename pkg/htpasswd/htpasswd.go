// htpasswd-style credential store: one "username:hash" per line, hashes in
// Apache MD5-APR1 format. Loaded once at startup; cleartext is never stored.
package htpasswd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/GehirnInc/crypt/apr1_crypt"
	"github.com/function61/gokit/atomicfilewrite"
)

var ErrUserExists = errors.New("user already exists")

type Store struct {
	path  string
	users map[string]string // username => MD5-APR1 hash
}

func Load(path string) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	store := &Store{path: path, users: map[string]string{}}
	if err := store.parse(file); err != nil {
		return nil, fmt.Errorf("htpasswd %s: %w", path, err)
	}

	return store, nil
}

// Empty makes a store backed by a file that does not exist yet.
func Empty(path string) *Store {
	return &Store{path: path, users: map[string]string{}}
}

func (s *Store) parse(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// third field (realm etc.) tolerated but ignored
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return fmt.Errorf("malformed line: %q", line)
		}

		// last duplicate wins
		s.users[parts[0]] = parts[1]
	}

	return scanner.Err()
}

// Verify reports whether the password reproduces the stored hash for user.
// Unknown user is simply a false.
func (s *Store) Verify(username string, password string) bool {
	hash, found := s.users[username]
	if !found {
		return false
	}

	return apr1_crypt.New().Verify(hash, []byte(password)) == nil
}

func (s *Store) Create(username string, password string) error {
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}

	return s.Update(username, password)
}

// Update sets the password unconditionally, creating the user if absent.
func (s *Store) Update(username string, password string) error {
	// nil salt => the crypter generates a random 8-char salt
	hash, err := apr1_crypt.New().Generate([]byte(password), nil)
	if err != nil {
		return err
	}

	s.users[username] = hash

	return nil
}

func (s *Store) Delete(username string) {
	delete(s.users, username)
}

func (s *Store) Usernames() []string {
	usernames := []string{}
	for username := range s.users {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	return usernames
}

// Save rewrites the whole file. Concurrent writers are not supported; the
// write itself is atomic so readers never observe a torn file.
func (s *Store) Save() error {
	return atomicfilewrite.Write(s.path, func(writer io.Writer) error {
		for _, username := range s.Usernames() {
			if _, err := fmt.Fprintf(writer, "%s:%s\n", username, s.users[username]); err != nil {
				return err
			}
		}

		return nil
	})
}
