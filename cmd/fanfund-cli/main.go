package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("FANFUND_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8546"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL")
			}
			rpcEndpoint = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[i], "--rpc=")
		default:
			out = append(out, args[i])
		}
	}
	return out, nil
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "create":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a creator address, title, goal and duration.")
			printUsage()
			return
		}
		duration, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid duration %q\n", args[4])
			os.Exit(1)
		}
		call("crowdfund_create", map[string]interface{}{
			"caller":   args[1],
			"title":    args[2],
			"goal":     args[3],
			"duration": duration,
		})
	case "contribute":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a contributor address, campaign id and amount.")
			printUsage()
			return
		}
		call("crowdfund_contribute", map[string]interface{}{
			"caller": args[1],
			"id":     mustID(args[2]),
			"amount": args[3],
		})
	case "finalize":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a campaign id.")
			printUsage()
			return
		}
		call("crowdfund_finalize", map[string]interface{}{"id": mustID(args[1])})
	case "withdraw":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a campaign id.")
			printUsage()
			return
		}
		call("crowdfund_withdraw", map[string]interface{}{"id": mustID(args[1])})
	case "refund":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a contributor address and campaign id.")
			printUsage()
			return
		}
		call("crowdfund_refund", map[string]interface{}{
			"caller": args[1],
			"id":     mustID(args[2]),
		})
	case "campaign":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a campaign id.")
			printUsage()
			return
		}
		call("crowdfund_getCampaign", map[string]interface{}{"id": mustID(args[1])})
	case "campaigns":
		call("crowdfund_listCampaigns", map[string]interface{}{})
	case "contribution":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a campaign id and contributor address.")
			printUsage()
			return
		}
		call("crowdfund_getContribution", map[string]interface{}{
			"id":          mustID(args[1]),
			"contributor": args[2],
		})
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		call("bank_balanceOf", map[string]interface{}{"address": args[1]})
	case "reward-balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		call("token_balanceOf", map[string]interface{}{"address": args[1]})
	case "credit":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an address and amount.")
			printUsage()
			return
		}
		call("bank_credit", map[string]interface{}{"address": args[1], "amount": args[2]})
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func mustID(raw string) uint64 {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid campaign id %q\n", raw)
		os.Exit(1)
	}
	return id
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

func call(method string, params map[string]interface{}) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error calling %s: %v\n", method, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding response: %v\n", err)
		os.Exit(1)
	}
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println(`Usage: fanfund-cli [--rpc URL] <command> [args]

Commands:
  create <creator> <title> <goal> <duration>   Create a campaign (duration in seconds)
  contribute <contributor> <id> <amount>       Contribute to an open campaign
  finalize <id>                                Lock in the success/failure decision
  withdraw <id>                                Release raised funds to the creator
  refund <contributor> <id>                    Return a contribution after failure
  campaign <id>                                Show one campaign
  campaigns                                    List all campaigns
  contribution <id> <contributor>              Show one contribution
  balance <address>                            Native balance
  reward-balance <address>                     Reward token balance
  credit <address> <amount>                    Credit a dev-network balance

Mutating commands read the bearer token from FANFUND_RPC_TOKEN.`)
}
