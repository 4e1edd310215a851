package vault

import "github.com/mtzanidakis/erevna/internal/store"

// SecretStore pairs a Vault with the store's secrets table: values are
// encrypted on the way in and decrypted on the way out.
type SecretStore struct {
	vault *Vault
	store *store.Store
}

func NewSecretStore(passphrase string, st *store.Store) *SecretStore {
	return &SecretStore{vault: New(passphrase), store: st}
}

func (s *SecretStore) Set(name, value string) error {
	ciphertext, nonce, err := s.vault.Encrypt([]byte(value))
	if err != nil {
		return err
	}
	return s.store.PutSecret(name, ciphertext, nonce)
}

func (s *SecretStore) Get(name string) (string, error) {
	ciphertext, nonce, err := s.store.GetSecret(name)
	if err != nil {
		return "", err
	}
	plaintext, err := s.vault.Decrypt(ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *SecretStore) List() ([]string, error) {
	return s.store.ListSecretNames()
}

func (s *SecretStore) Delete(name string) error {
	return s.store.DeleteSecret(name)
}
