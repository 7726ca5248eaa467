package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"fixedswap/crypto"
)

type recordedCall struct {
	method string
	path   string
	body   map[string]interface{}
	signed bool
}

func stubAPI(t *testing.T, response string) *[]recordedCall {
	t.Helper()
	calls := &[]recordedCall{}
	originalCall, originalSigner := apiCall, loadSigner
	apiCall = func(method, path string, body interface{}, key *crypto.PrivateKey) (json.RawMessage, error) {
		call := recordedCall{method: method, path: path, signed: key != nil}
		if body != nil {
			raw, _ := json.Marshal(body)
			_ = json.Unmarshal(raw, &call.body)
		}
		*calls = append(*calls, call)
		return json.RawMessage(response), nil
	}
	loadSigner = func() (*crypto.PrivateKey, error) { return crypto.GeneratePrivateKey() }
	t.Cleanup(func() { apiCall, loadSigner = originalCall, originalSigner })
	return calls
}

func TestUsageAndUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 || !strings.Contains(stderr.String(), "Usage: fixedrate-cli") {
		t.Fatalf("expected usage, got %d %q", code, stderr.String())
	}
	stderr.Reset()
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 1 || !strings.Contains(stderr.String(), `Unknown command "bogus"`) {
		t.Fatalf("expected unknown command error, got %d %q", code, stderr.String())
	}
}

func TestBuyScalesHumanUnits(t *testing.T) {
	calls := stubAPI(t, `{"netBaseAmount":"1"}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"buy", "0xabc", "1.5", "--units", "6"}, &stdout, &stderr); code != 0 {
		t.Fatalf("buy failed: %s", stderr.String())
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != http.MethodPost || call.path != "/v1/exchanges/0xabc/buy" || !call.signed {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.body["amount"] != "1500000" {
		t.Fatalf("unexpected amount %v", call.body["amount"])
	}
	if code := run([]string{"buy", "0xabc", "1.0000001", "--units", "6"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected precision error")
	}
}

func TestCreateConvertsRateAndFee(t *testing.T) {
	calls := stubAPI(t, `{}`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"create", "--data", "0xd0", "--base", "0xb0", "--rate", "2.5", "--market-fee", "0.01", "--base-decimals", "6"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("create failed: %s", stderr.String())
	}
	body := (*calls)[0].body
	if body["fixedRate"] != "2500000000000000000" || body["marketFee"] != "10000000000000000" {
		t.Fatalf("unexpected create body: %+v", body)
	}
	if body["baseTokenDecimals"] != float64(6) {
		t.Fatalf("base decimals not forwarded: %+v", body)
	}
	if _, ok := body["dataTokenDecimals"]; ok {
		t.Fatalf("data decimals should be resolved by the server")
	}
	if code := run([]string{"create", "--data", "0xd0", "--base", "0xb0", "--rate", "1", "--market-fee", "0.2"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected excessive fee rejection")
	}
}

func TestQuoteIsUnsigned(t *testing.T) {
	calls := stubAPI(t, `{"baseTokenAmount":"10"}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"quote", "0xabc", "sell", "10"}, &stdout, &stderr); code != 0 {
		t.Fatalf("quote failed: %s", stderr.String())
	}
	call := (*calls)[0]
	if call.method != http.MethodGet || call.signed || call.path != "/v1/exchanges/0xabc/quote?amount=10&direction=sell" {
		t.Fatalf("unexpected quote call: %+v", call)
	}
	if !strings.Contains(stdout.String(), `"baseTokenAmount": "10"`) {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestBalanceFormatsUnits(t *testing.T) {
	stubAPI(t, `{"balance":"1234500","allowance":"100"}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"balance", "0xb0", "0x01", "--spender", "0xe0", "--units", "6"}, &stdout, &stderr); code != 0 {
		t.Fatalf("balance failed: %s", stderr.String())
	}
	if !strings.Contains(stdout.String(), "balance: 1.2345") || !strings.Contains(stdout.String(), "allowance: 0.0001") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestSignedCommandReportsSignerError(t *testing.T) {
	stubAPI(t, `{}`)
	loadSigner = func() (*crypto.PrivateKey, error) { return nil, errors.New("no signer configured") }
	var stdout, stderr bytes.Buffer
	if code := run([]string{"activate", "0xabc"}, &stdout, &stderr); code != 1 || !strings.Contains(stderr.String(), "no signer configured") {
		t.Fatalf("expected signer error, got %d %q", code, stderr.String())
	}
}

func TestKeygenWritesLoadableKeystore(t *testing.T) {
	t.Setenv("FIXEDRATE_PASSPHRASE", "correct horse")
	path := filepath.Join(t.TempDir(), "signer.json")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "--out", path, "--light"}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen failed: %s", stderr.String())
	}
	original := keystorePath
	keystorePath = path
	defer func() { keystorePath = original }()
	key, err := loadKeystoreSigner()
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if !strings.Contains(stdout.String(), key.PubKey().Address().String()) {
		t.Fatalf("keygen output %q does not name %s", stdout.String(), key.PubKey().Address().String())
	}
}

func TestUnitHelpers(t *testing.T) {
	if got := formatUnits("1000000", 6); got != "1" {
		t.Fatalf("formatUnits: %s", got)
	}
	if got := formatUnits("5", 0); got != "5" {
		t.Fatalf("formatUnits raw: %s", got)
	}
	max, err := parseAllowance("MAX", 0)
	if err != nil || max.BitLen() != 256 {
		t.Fatalf("max allowance: %v %v", max, err)
	}
	if _, err := parseUnits("-1", 0); err == nil {
		t.Fatalf("expected negative amount rejection")
	}
}

func TestGlobalFlags(t *testing.T) {
	endpoint, ks := apiEndpoint, keystorePath
	defer func() { apiEndpoint, keystorePath = endpoint, ks }()
	rest, err := applyGlobalFlags([]string{"--endpoint", "http://node:1/", "get", "--keystore=/tmp/k.json", "0x01"})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if apiEndpoint != "http://node:1" || keystorePath != "/tmp/k.json" {
		t.Fatalf("unexpected globals %q %q", apiEndpoint, keystorePath)
	}
	if strings.Join(rest, " ") != "get 0x01" {
		t.Fatalf("unexpected remaining args %v", rest)
	}
	if _, err := applyGlobalFlags([]string{"--endpoint"}); err == nil {
		t.Fatalf("expected missing value error")
	}
}
