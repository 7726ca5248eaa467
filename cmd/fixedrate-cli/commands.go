package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fixedswap/crypto"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseInterleaved lets flags follow positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func exchangePath(id string, suffix ...string) string {
	path := "/v1/exchanges/" + url.PathEscape(strings.TrimSpace(id))
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}

func tokenPath(addr string, suffix ...string) string {
	path := "/v1/tokens/" + url.PathEscape(strings.TrimSpace(addr))
	for _, s := range suffix {
		path += "/" + url.PathEscape(s)
	}
	return path
}

// signed loads the signer and performs a mutating call.
func signed(stdout, stderr io.Writer, path string, body interface{}) int {
	key, err := loadSigner()
	if err != nil {
		return fail(stderr, err)
	}
	raw, err := apiCall(http.MethodPost, path, body, key)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, raw)
	return 0
}

func query(stdout, stderr io.Writer, path string) int {
	raw, err := apiCall(http.MethodGet, path, nil, nil)
	if err != nil {
		return fail(stderr, err)
	}
	printJSON(stdout, raw)
	return 0
}

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var (
		out   string
		light bool
	)
	fs.StringVar(&out, "out", "", "keystore file to write")
	fs.BoolVar(&light, "light", false, "use light scrypt parameters (testing only)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli keygen --out FILE [--light]")
		return 1
	}
	passphrase, err := readPassphrase("New keystore passphrase: ", true)
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	cost := crypto.StandardScrypt
	if light {
		cost = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystore(out, key, passphrase, cost); err != nil {
		return fail(stderr, err)
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "address: %s\n", addr.String())
	fmt.Fprintf(stdout, "hex:     %s\n", addr.Common().Hex())
	fmt.Fprintf(stdout, "keystore saved to %s\n", out)
	return 0
}

func runCreateCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	var (
		dataToken, baseToken, rate, owner, marketFee, collector string
		dataDecimals, baseDecimals                              int
	)
	fs.StringVar(&dataToken, "data", "", "data token address")
	fs.StringVar(&baseToken, "base", "", "base token address")
	fs.StringVar(&rate, "rate", "", "price of one data token in base tokens (0 creates a dispenser)")
	fs.StringVar(&owner, "owner", "", "exchange owner (defaults to signer)")
	fs.StringVar(&marketFee, "market-fee", "", "market fee as a fraction, e.g. 0.01")
	fs.StringVar(&collector, "market-fee-collector", "", "market fee destination (defaults to owner)")
	fs.IntVar(&dataDecimals, "data-decimals", -1, "override data token decimals")
	fs.IntVar(&baseDecimals, "base-decimals", -1, "override base token decimals")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if dataToken == "" || baseToken == "" || rate == "" {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli create --data TOKEN --base TOKEN --rate RATE [--owner ADDR] [--market-fee FRACTION]")
		return 1
	}
	rawRate, err := parseRate(rate)
	if err != nil {
		return fail(stderr, fmt.Errorf("rate: %w", err))
	}
	fee, err := parseFeeFraction(marketFee)
	if err != nil {
		return fail(stderr, fmt.Errorf("market fee: %w", err))
	}
	body := map[string]interface{}{
		"dataToken": dataToken,
		"baseToken": baseToken,
		"fixedRate": rawRate.String(),
		"marketFee": fee.String(),
	}
	if owner != "" {
		body["owner"] = owner
	}
	if collector != "" {
		body["marketFeeCollector"] = collector
	}
	for name, value := range map[string]int{"dataTokenDecimals": dataDecimals, "baseTokenDecimals": baseDecimals} {
		if value < 0 {
			continue
		}
		if value > 18 {
			return fail(stderr, fmt.Errorf("%s must be at most 18", name))
		}
		body[name] = value
	}
	return signed(stdout, stderr, "/v1/exchanges", body)
}

func runGetCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli get <exchangeId>")
		return 1
	}
	return query(stdout, stderr, exchangePath(args[0]))
}

func runListCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli list")
		return 1
	}
	return query(stdout, stderr, "/v1/exchanges")
}

func runRateCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli rate <exchangeId>")
		return 1
	}
	raw, err := apiCall(http.MethodGet, exchangePath(args[0], "rate"), nil, nil)
	if err != nil {
		return fail(stderr, err)
	}
	var payload struct {
		FixedRate string `json:"fixedRate"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fail(stderr, fmt.Errorf("decode response: %w", err))
	}
	fmt.Fprintf(stdout, "fixedRate: %s (%s)\n", payload.FixedRate, formatUnits(payload.FixedRate, fixedPointDecimals))
	return 0
}

func runSetRateCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli set-rate <exchangeId> <rate>")
		return 1
	}
	rate, err := parseRate(args[1])
	if err != nil {
		return fail(stderr, fmt.Errorf("rate: %w", err))
	}
	return signed(stdout, stderr, exchangePath(args[0], "rate"), map[string]string{"rate": rate.String()})
}

func runToggleCommand(action string, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "Usage: fixedrate-cli %s <exchangeId>\n", action)
		return 1
	}
	return signed(stdout, stderr, exchangePath(args[0], action), nil)
}

func runFeeCollectorCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli fee-collector <exchangeId> <address>")
		return 1
	}
	return signed(stdout, stderr, exchangePath(args[0], "fee-collector"), map[string]string{"collector": args[1]})
}

func unitsFlag(fs *flag.FlagSet) *int {
	return fs.Int("units", 0, "decimals of the amount; 0 means raw units")
}

func runSwapCommand(direction string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(direction, stderr)
	units := unitsFlag(fs)
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 2 {
		fmt.Fprintf(stderr, "Usage: fixedrate-cli %s <exchangeId> <amount> [--units N]\n", direction)
		return 1
	}
	amount, err := parseUnits(positional[1], int32(*units))
	if err != nil {
		return fail(stderr, err)
	}
	return signed(stdout, stderr, exchangePath(positional[0], direction), map[string]string{"amount": amount.String()})
}

func runQuoteCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("quote", stderr)
	units := unitsFlag(fs)
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 3 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli quote <exchangeId> <buy|sell> <amount> [--units N]")
		return 1
	}
	direction := strings.ToLower(positional[1])
	if direction != "buy" && direction != "sell" {
		return fail(stderr, fmt.Errorf("direction must be buy or sell"))
	}
	amount, err := parseUnits(positional[2], int32(*units))
	if err != nil {
		return fail(stderr, err)
	}
	params := url.Values{"direction": {direction}, "amount": {amount.String()}}
	return query(stdout, stderr, exchangePath(positional[0], "quote")+"?"+params.Encode())
}

func runCollectCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("collect", stderr)
	units := unitsFlag(fs)
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 3 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli collect <exchangeId> <base|data> <amount> [--units N]")
		return 1
	}
	asset := strings.ToLower(positional[1])
	if asset != "base" && asset != "data" {
		return fail(stderr, fmt.Errorf("asset must be base or data"))
	}
	amount, err := parseUnits(positional[2], int32(*units))
	if err != nil {
		return fail(stderr, err)
	}
	return signed(stdout, stderr, exchangePath(positional[0], "collect"), map[string]string{"asset": asset, "amount": amount.String()})
}

func runSwapsCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("swaps", stderr)
	limit := fs.Int("limit", 0, "maximum rows to return")
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli swaps <exchangeId> [--limit N]")
		return 1
	}
	path := exchangePath(positional[0], "swaps")
	if *limit > 0 {
		path += "?limit=" + strconv.Itoa(*limit)
	}
	return query(stdout, stderr, path)
}

func runApproveCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("approve", stderr)
	units := unitsFlag(fs)
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 3 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli approve <token> <spender> <amount|max> [--units N]")
		return 1
	}
	amount, err := parseAllowance(positional[2], int32(*units))
	if err != nil {
		return fail(stderr, err)
	}
	return signed(stdout, stderr, tokenPath(positional[0], "approve"), map[string]string{"spender": positional[1], "amount": amount.String()})
}

func runTransferCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	units := unitsFlag(fs)
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 3 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli transfer <token> <to> <amount> [--units N]")
		return 1
	}
	amount, err := parseUnits(positional[2], int32(*units))
	if err != nil {
		return fail(stderr, err)
	}
	return signed(stdout, stderr, tokenPath(positional[0], "transfer"), map[string]string{"to": positional[1], "amount": amount.String()})
}

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	units := unitsFlag(fs)
	spender := fs.String("spender", "", "also show the allowance granted to this address")
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return 1
	}
	if len(positional) != 2 {
		fmt.Fprintln(stderr, "Usage: fixedrate-cli balance <token> <account> [--spender ADDR] [--units N]")
		return 1
	}
	path := tokenPath(positional[0], "balances", positional[1])
	if *spender != "" {
		path += "?spender=" + url.QueryEscape(*spender)
	}
	raw, err := apiCall(http.MethodGet, path, nil, nil)
	if err != nil {
		return fail(stderr, err)
	}
	var payload struct {
		Balance   string `json:"balance"`
		Allowance string `json:"allowance"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fail(stderr, fmt.Errorf("decode response: %w", err))
	}
	fmt.Fprintf(stdout, "balance: %s\n", formatUnits(payload.Balance, int32(*units)))
	if payload.Allowance != "" {
		fmt.Fprintf(stdout, "allowance: %s\n", formatUnits(payload.Allowance, int32(*units)))
	}
	return 0
}
