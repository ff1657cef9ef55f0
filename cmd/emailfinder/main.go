// Command emailfinder guesses and verifies the email address of a person at
// a company domain, or verifies a fixed list of addresses.
//
//	emailfinder -first Jane -last Doe -domain acme.com
//	emailfinder -email jane@acme.com,j.doe@acme.com -format json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/optimode/emailfinder"
	"github.com/optimode/emailfinder/internal/config"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "emailfinder: %v\n", err)
		return exitConfig
	}

	fs := flag.NewFlagSet("emailfinder", flag.ContinueOnError)
	fs.SetOutput(stderr)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	domain := fs.String("domain", "", "company domain")
	emails := fs.String("email", "", "comma separated addresses to verify instead of guessing")
	format := fs.String("format", "table", "output format: table|json")
	workers := fs.Int("workers", cfg.Workers, "concurrent verifications (0 = default)")
	from := fs.String("from", cfg.MailFrom, "MAIL FROM address (default test@example.com)")
	helo := fs.String("helo", cfg.HeloName, "EHLO name (default: host name)")
	dnsServer := fs.String("dns-server", cfg.DNSServer, "query this nameserver instead of the system resolver")
	proxyAddr := fs.String("proxy", cfg.SOCKS5Proxy, "SOCKS5 proxy [user:pass@]host:port")
	interval := fs.Duration("interval", cfg.HostInterval, "minimum delay between probes to one MX host (0 = default)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  emailfinder -first Jane -last Doe -domain acme.com [flags]\n")
		fmt.Fprintf(stderr, "  emailfinder -email jane@acme.com,j.doe@acme.com [flags]\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	var addrs []string
	switch {
	case *emails != "":
		addrs = splitList(*emails)
	case *first != "" && *last != "" && *domain != "":
		addrs = emailfinder.GeneratePermutations(*first, *last, *domain)
	}
	if len(addrs) == 0 {
		fmt.Fprintln(stderr, "emailfinder: need -first, -last and -domain, or -email")
		fs.Usage()
		return exitUsage
	}
	if *format != "table" && *format != "json" {
		fmt.Fprintf(stderr, "emailfinder: unknown format %q\n", *format)
		return exitUsage
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetLevel(cfg.LogLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	v := emailfinder.New().
		WithDNS(emailfinder.DNSOptions{Server: *dnsServer}).
		WithSMTP(emailfinder.SMTPOptions{
			HeloName:        *helo,
			MailFrom:        *from,
			ConnectTimeout:  cfg.ConnectTimeout,
			CommandTimeout:  cfg.CommandTimeout,
			MinHostInterval: *interval,
			SOCKS5Proxy:     *proxyAddr,
		}).
		WithLogger(log)
	if err := v.Err(); err != nil {
		fmt.Fprintf(stderr, "emailfinder: %v\n", err)
		return exitConfig
	}

	bar := progressbar.NewOptions(len(addrs),
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("verifying"),
		progressbar.OptionClearOnFinish(),
	)
	results := v.VerifyMany(ctx, addrs, emailfinder.BatchOptions{
		Workers: *workers,
		OnResult: func(_ int, r emailfinder.Result) {
			_ = bar.Add(1)
			log.WithFields(logrus.Fields{"email": r.Email, "status": r.Status}).Info(r.Reason)
		},
	})
	_ = bar.Finish()

	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(stderr, "emailfinder: encoding results: %v\n", err)
		}
		return exitOK
	}
	renderTable(stdout, results)
	return exitOK
}

func renderTable(w io.Writer, results []emailfinder.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Email", "Status", "MX", "SPF", "DMARC", "Role", "Free", "Reason"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Email,
			statusColor(r.Bucket()).Sprint(r.Status),
			r.MXRecord,
			yesNo(r.HasSPF),
			dmarcColumn(r),
			yesNo(r.IsRoleAccount),
			yesNo(r.IsFreeProvider),
			r.Reason,
		})
	}
	t.Render()
}

func statusColor(b emailfinder.Bucket) *color.Color {
	switch b {
	case emailfinder.BucketPass:
		return color.New(color.FgGreen)
	case emailfinder.BucketCaution:
		return color.New(color.FgYellow)
	case emailfinder.BucketFail:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

func dmarcColumn(r emailfinder.Result) string {
	if r.DMARCPolicy != "" {
		return r.DMARCPolicy
	}
	return yesNo(r.HasDMARC)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// splitList splits on commas and whitespace.
func splitList(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}
