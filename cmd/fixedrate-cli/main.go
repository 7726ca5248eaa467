package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	apiEndpoint  = defaultEndpoint()
	keystorePath = strings.TrimSpace(os.Getenv("FIXEDRATE_KEYSTORE"))
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	rest := args[1:]
	switch strings.ToLower(args[0]) {
	case "keygen":
		return runKeygenCommand(rest, stdout, stderr)
	case "create":
		return runCreateCommand(rest, stdout, stderr)
	case "get":
		return runGetCommand(rest, stdout, stderr)
	case "list":
		return runListCommand(rest, stdout, stderr)
	case "rate":
		return runRateCommand(rest, stdout, stderr)
	case "set-rate":
		return runSetRateCommand(rest, stdout, stderr)
	case "activate":
		return runToggleCommand("activate", rest, stdout, stderr)
	case "deactivate":
		return runToggleCommand("deactivate", rest, stdout, stderr)
	case "fee-collector":
		return runFeeCollectorCommand(rest, stdout, stderr)
	case "buy":
		return runSwapCommand("buy", rest, stdout, stderr)
	case "sell":
		return runSwapCommand("sell", rest, stdout, stderr)
	case "quote":
		return runQuoteCommand(rest, stdout, stderr)
	case "collect":
		return runCollectCommand(rest, stdout, stderr)
	case "swaps":
		return runSwapsCommand(rest, stdout, stderr)
	case "approve":
		return runApproveCommand(rest, stdout, stderr)
	case "transfer":
		return runTransferCommand(rest, stdout, stderr)
	case "balance":
		return runBalanceCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: fixedrate-cli [--endpoint URL] [--keystore FILE] <command> [args]",
		"",
		"Exchanges:",
		"  create --data TOKEN --base TOKEN --rate RATE [--owner ADDR] [--market-fee FRACTION] [--market-fee-collector ADDR]",
		"  get <exchangeId>",
		"  list",
		"  rate <exchangeId>",
		"  set-rate <exchangeId> <rate>",
		"  activate <exchangeId>",
		"  deactivate <exchangeId>",
		"  fee-collector <exchangeId> <address>",
		"  buy <exchangeId> <amount> [--units N]",
		"  sell <exchangeId> <amount> [--units N]",
		"  quote <exchangeId> <buy|sell> <amount> [--units N]",
		"  collect <exchangeId> <base|data> <amount> [--units N]",
		"  swaps <exchangeId> [--limit N]",
		"",
		"Tokens:",
		"  approve <token> <spender> <amount|max> [--units N]",
		"  transfer <token> <to> <amount> [--units N]",
		"  balance <token> <account> [--spender ADDR] [--units N]",
		"",
		"Keys:",
		"  keygen --out FILE [--light]",
		"",
		"Rates are decimal prices of one data token in base tokens (e.g. 1.5).",
		"Amounts are raw token units unless --units gives the token decimals.",
	}, "\n")
}

func defaultEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("FIXEDRATE_ENDPOINT")); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:7080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--endpoint" || arg == "--keystore":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--endpoint" {
				apiEndpoint = args[i+1]
			} else {
				keystorePath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--endpoint="):
			apiEndpoint = strings.TrimPrefix(arg, "--endpoint=")
		case strings.HasPrefix(arg, "--keystore="):
			keystorePath = strings.TrimPrefix(arg, "--keystore=")
		default:
			out = append(out, arg)
		}
	}
	apiEndpoint = strings.TrimRight(apiEndpoint, "/")
	return out, nil
}
