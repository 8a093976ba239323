// Package main prints the fields of a signed request for the complex API
// key scheme, ready to paste into curl.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/signgate/internal/apikey"
)

type options struct {
	id        string
	secret    string
	algorithm string
	nonce     string
	timestamp int64
	source    string
	target    string
	extra     []string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var (
		o     options
		extra string
	)

	fs := flag.NewFlagSet("signreq", flag.ContinueOnError)
	fs.StringVar(&o.id, "id", "", "Access key id")
	fs.StringVar(&o.secret, "secret", "", "Access key secret")
	fs.StringVar(&o.algorithm, "alg", apikey.AlgHMACSHA256, "Signature algorithm (hmac-sha256, hmac-sha512, hmac-sha3-256)")
	fs.StringVar(&o.nonce, "nonce", "", "Nonce (random when empty)")
	fs.Int64Var(&o.timestamp, "timestamp", 0, "Unix timestamp in seconds (now when zero)")
	fs.StringVar(&o.source, "source", apikey.SourceHeader, "Where the fields are sent (header, query)")
	fs.StringVar(&o.target, "url", "", "Target URL; prints a curl command when set")
	fs.StringVar(&extra, "extra", "", "Comma-separated extra signed values, in configured order")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.id == "" || o.secret == "" {
		return o, errors.New("-id and -secret are required")
	}
	if o.source != apikey.SourceHeader && o.source != apikey.SourceQuery {
		return o, fmt.Errorf("unsupported source %q", o.source)
	}
	if o.nonce == "" {
		o.nonce = uuid.NewString()
	}
	if extra != "" {
		o.extra = strings.Split(extra, ",")
	}
	return o, nil
}

func run(args []string, w io.Writer) error {
	o, err := parseOptions(args)
	if err != nil {
		return err
	}

	signer, err := apikey.NewSigner(o.algorithm)
	if err != nil {
		return err
	}

	now := time.Now()
	if o.timestamp != 0 {
		now = time.Unix(o.timestamp, 0)
	}

	f := apikey.SignRequest(signer, o.id, o.secret, o.nonce, now, o.extra...)
	cfg := apikey.DefaultComplexConfig()
	fields := []struct{ name, value string }{
		{cfg.KeyName, f.ID},
		{cfg.TimestampName, f.Timestamp},
		{cfg.NonceName, f.Nonce},
		{cfg.SignatureName, f.Signature},
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	gray.Fprintf(w, "    %s over %q\n", signer.Algorithm(),
		apikey.CanonicalString(f.ID, f.Timestamp, f.Nonce, f.Extra...))
	for _, field := range fields {
		green.Fprint(w, "    ▶ ")
		cyan.Fprintf(w, "%-12s", field.name)
		fmt.Fprintln(w, field.value)
	}

	if o.target == "" {
		return nil
	}

	u, err := url.Parse(o.target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	var cmd strings.Builder
	cmd.WriteString("curl")
	if o.source == apikey.SourceQuery {
		q := u.Query()
		for _, field := range fields {
			q.Set(field.name, field.value)
		}
		u.RawQuery = q.Encode()
	} else {
		for _, field := range fields {
			fmt.Fprintf(&cmd, " -H '%s: %s'", field.name, field.value)
		}
	}
	fmt.Fprintf(&cmd, " '%s'", u.String())

	fmt.Fprintln(w)
	fmt.Fprintln(w, cmd.String())
	return nil
}
