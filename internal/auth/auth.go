package auth

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	serviceName   = "polysub"
	geminiAccount = "gemini-api-key"
	groqAccount   = "groq-api-key"
	geminiEnvVar  = "GEMINI_API_KEY"
	groqEnvVar    = "GROQ_API_KEY"
)

func accountAndEnv(service string) (string, string) {
	if service == "groq" {
		return groqAccount, groqEnvVar
	}
	return geminiAccount, geminiEnvVar
}

// GetKey retrieves the API key for a backend service (gemini or groq).
// The OS keychain is preferred; environment variables are consulted only
// when allowEnv is true. The second return value names the source.
func GetKey(service string, allowEnv bool) (string, string) {
	account, envVar := accountAndEnv(service)

	key, err := keyring.Get(serviceName, account)
	if err == nil && key != "" {
		return strings.TrimSpace(key), "Keychain"
	}

	if allowEnv {
		if key := os.Getenv(envVar); key != "" {
			return strings.TrimSpace(key), "Environment Variable"
		}
	}

	return "", ""
}

// SaveKey saves the key for a backend service to the OS Keychain.
func SaveKey(service, key string) error {
	account, _ := accountAndEnv(service)
	return keyring.Set(serviceName, account, strings.TrimSpace(key))
}

// DeleteKey removes the key for a backend service from the OS Keychain.
func DeleteKey(service string) error {
	account, _ := accountAndEnv(service)
	return keyring.Delete(serviceName, account)
}

// HasKey reports whether a key exists for a backend service in the keychain.
func HasKey(service string) bool {
	account, _ := accountAndEnv(service)
	key, err := keyring.Get(serviceName, account)
	return err == nil && key != ""
}

// PromptForAPIKey securely prompts the user for their API key.
func PromptForAPIKey(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("API key must not be empty")
	}
	return key, nil
}
