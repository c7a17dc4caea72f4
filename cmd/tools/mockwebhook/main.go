package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Sends a gateway-style status notification against a running instance.
// Payone notifications are form-encoded TransactionStatus posts; Stripe
// notifications carry the fields as query/form params the same way the
// webhook handler reads them.
func main() {
	target := flag.String("url", "http://localhost:8080/webhooks/payone", "Webhook URL")
	gateway := flag.String("gateway", "payone", "Gateway flavor (payone, stripe)")
	reference := flag.String("reference", "", "Order reference (empty to test the ignore path)")
	txID := flag.String("txid", "tx_"+uuid.NewString()[:8], "Transaction ID")
	action := flag.String("action", "paid", "Payone txaction or Stripe event type")
	eventID := flag.String("event-id", "evt_"+uuid.NewString()[:8], "Event ID (stripe)")

	flag.Parse()

	form := url.Values{}
	now := strconv.FormatInt(time.Now().Unix(), 10)

	switch *gateway {
	case "payone":
		if *reference != "" {
			form.Set("reference", *reference)
		}
		form.Set("txaction", *action)
		form.Set("txid", *txID)
		form.Set("txtime", now)
	case "stripe":
		if *reference != "" {
			form.Set("reference", *reference)
		}
		form.Set("type", *action)
		form.Set("event_id", *eventID)
		form.Set("transaction_reference", *txID)
		form.Set("created", now)
	default:
		fmt.Fprintf(os.Stderr, "unknown gateway flavor %q\n", *gateway)
		os.Exit(1)
	}

	fmt.Printf("Sending to %s...\n", *target)
	resp, err := http.PostForm(*target, form)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
