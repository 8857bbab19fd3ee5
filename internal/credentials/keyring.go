package credentials

import (
	"context"

	"github.com/zalando/go-keyring"
)

const (
	keyringUserKey     = "username"
	keyringPasswordKey = "password"
)

// KeyringProvider reads the login from the OS keychain. It never writes.
type KeyringProvider struct {
	service string
}

func NewKeyringProvider(service string) *KeyringProvider {
	return &KeyringProvider{service: service}
}

func (k *KeyringProvider) Name() string { return "keyring" }

func (k *KeyringProvider) Available() bool { return k.service != "" }

func (k *KeyringProvider) Fill(_ context.Context, partial Credentials) (Credentials, error) {
	return merge(partial, k.get(keyringUserKey), k.get(keyringPasswordKey)), nil
}

// get treats a missing entry as empty. A keychain that cannot be reached,
// such as a headless box without a secret service, counts as empty too.
func (k *KeyringProvider) get(key string) string {
	secret, err := keyring.Get(k.service, key)
	if err != nil {
		return ""
	}
	return secret
}

var _ Source = (*KeyringProvider)(nil)
