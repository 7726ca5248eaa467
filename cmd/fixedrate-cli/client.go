package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"fixedswap/crypto"
	"fixedswap/gateway/middleware"
)

var (
	cliNow     = time.Now
	httpClient = &http.Client{Timeout: 15 * time.Second}
	apiCall    = callAPI
	loadSigner = loadKeystoreSigner
)

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// callAPI performs a JSON request. A non-nil key signs the request.
func callAPI(method, path string, body interface{}, key *crypto.PrivateKey) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}
	req, err := http.NewRequest(method, apiEndpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		if err := middleware.SignRequest(req, key, cliNow()); err != nil {
			return nil, err
		}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var decoded struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			msg = decoded.Error
		}
		return nil, &apiError{Status: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func loadKeystoreSigner() (*crypto.PrivateKey, error) {
	if strings.TrimSpace(keystorePath) == "" {
		return nil, errors.New("no signer configured: pass --keystore or set FIXEDRATE_KEYSTORE")
	}
	passphrase, err := readPassphrase("Keystore passphrase: ", false)
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(keystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", keystorePath, err)
	}
	return key, nil
}

// readPassphrase prefers FIXEDRATE_PASSPHRASE and otherwise prompts on the
// controlling terminal.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if v, ok := os.LookupEnv("FIXEDRATE_PASSPHRASE"); ok {
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("passphrase required: set FIXEDRATE_PASSPHRASE or run in a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Repeat passphrase: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		if !bytes.Equal(first, second) {
			return "", errors.New("passphrases do not match")
		}
	}
	return string(first), nil
}

func printJSON(stdout io.Writer, raw json.RawMessage) {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		fmt.Fprintln(stdout, string(raw))
		return
	}
	pretty, _ := json.MarshalIndent(decoded, "", "  ")
	fmt.Fprintln(stdout, string(pretty))
}
