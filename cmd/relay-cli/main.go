package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/worldofchami/bakerelay/cmd/relay"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
)

// CLI for exercising a running relay.
//
// Examples:
//
//	go run ./cmd/relay-cli message --phone +919800000000 --name Asha --text "I want a cake"
//	go run ./cmd/relay-cli invoice --user baker-1 --file invoice.pdf
//	go run ./cmd/relay-cli webhook --file payload.json --sign
//
// The relay's JSON reply is printed to stdout.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	addr := os.Getenv("RELAY_URL")
	if addr == "" {
		addr = "http://localhost:8090"
	}
	client, err := relay.NewClient(addr)
	if err != nil {
		fail(err)
	}

	switch os.Args[1] {
	case "message":
		message(client, os.Args[2:])
	case "invoice":
		invoice(client, os.Args[2:])
	case "webhook":
		webhook(client, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	_, _ = fmt.Fprintln(os.Stderr, "usage:")
	_, _ = fmt.Fprintln(os.Stderr, "  relay-cli message --phone <number> --name <name> --text <message>")
	_, _ = fmt.Fprintln(os.Stderr, "  relay-cli invoice [--user <id>] [--text <text>] [--file <invoice.pdf>]")
	_, _ = fmt.Fprintln(os.Stderr, "  relay-cli webhook --file <payload.json|-> [--sign]")
	_, _ = fmt.Fprintln(os.Stderr, "env: RELAY_URL (default http://localhost:8090), CASHFREE_WEBHOOK_SECRET for --sign")
}

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func message(client *relay.Client, args []string) {
	fs := flag.NewFlagSet("message", flag.ExitOnError)
	phone := fs.String("phone", "", "customer phone number")
	name := fs.String("name", "", "customer name")
	text := fs.String("text", "", "message text")
	_ = fs.Parse(args)

	if *phone == "" || *name == "" || *text == "" {
		usage()
		os.Exit(2)
	}

	ctx, cancel := timeout()
	defer cancel()
	out, err := client.ProcessMessage(ctx, relay.MessageRequest{PhoneNumber: *phone, Name: *name, Message: *text})
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func invoice(client *relay.Client, args []string) {
	fs := flag.NewFlagSet("invoice", flag.ExitOnError)
	user := fs.String("user", "", "conversation key (user_id)")
	text := fs.String("text", "", "message text")
	file := fs.String("file", "", "path to a PDF invoice")
	_ = fs.Parse(args)

	if *text == "" && *file == "" {
		_, _ = fmt.Fprintln(os.Stderr, "invoice requires --text or --file")
		usage()
		os.Exit(2)
	}

	req := relay.InvoiceRequest{UserID: *user, Text: *text, Filename: *file}
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fail(err)
		}
		req.Document = data
	}

	ctx, cancel := timeout()
	defer cancel()
	out, err := client.ProcessInvoice(ctx, req)
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}

func webhook(client *relay.Client, args []string) {
	fs := flag.NewFlagSet("webhook", flag.ExitOnError)
	file := fs.String("file", "-", "payload file, - for stdin")
	sign := fs.Bool("sign", false, "sign the payload with CASHFREE_WEBHOOK_SECRET")
	_ = fs.Parse(args)

	var payload []byte
	var err error
	if *file == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(*file)
	}
	if err != nil {
		fail(err)
	}

	var timestamp, signature string
	if *sign {
		secret := os.Getenv("CASHFREE_WEBHOOK_SECRET")
		if secret == "" {
			fail(fmt.Errorf("--sign requires CASHFREE_WEBHOOK_SECRET"))
		}
		timestamp = fmt.Sprintf("%d", time.Now().Unix())
		signature = cashfree.Sign(secret, timestamp, payload)
	}

	ctx, cancel := timeout()
	defer cancel()
	out, err := client.Webhook(ctx, payload, timestamp, signature)
	if err != nil {
		fail(err)
	}
	fmt.Println(out)
}
