package server

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"golang.org/x/term"
)

// Seams for tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errNoPassphrase = errors.New("encryption passphrase is not set and stdin is not a terminal")

// passphrase returns the configured chunk passphrase, prompting on w when it
// is empty and stdin is interactive.
func passphrase(c *config.Config, w io.Writer) ([]byte, error) {
	if c.EncryptionPassphrase != "" {
		return []byte(c.EncryptionPassphrase), nil
	}

	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return nil, errNoPassphrase
	}

	if _, err := fmt.Fprint(w, "Encryption passphrase: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errNoPassphrase
	}
	return pw, nil
}

// newCodec derives the chunk key from the passphrase and salt.
func newCodec(c *config.Config, w io.Writer) (*cryptox.Codec, error) {
	pw, err := passphrase(c, w)
	if err != nil {
		return nil, err
	}
	key := cryptox.DeriveChunkKey(pw, []byte(c.EncryptionSalt))
	common.WipeByteArray(pw)
	defer common.WipeByteArray(key)
	return cryptox.NewCodec(key)
}
