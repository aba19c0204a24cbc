package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"cashbook/internal/auth"
	"cashbook/internal/backend"
	"cashbook/internal/cashbook"
	"cashbook/internal/cli"
	"cashbook/internal/config"
	"cashbook/internal/core"
	"cashbook/internal/export"
	"cashbook/internal/log"
)

func main() {
	var (
		email    = flag.String("email", os.Getenv("CASHBOOK_EMAIL"), "account email")
		password = flag.String("password", os.Getenv("CASHBOOK_PASSWORD"), "account password")
		pdfPath  = flag.String("pdf", "", "write the report as PDF to this file")
		mdPath   = flag.String("md", "", "write the report as Markdown to this file")
		chartOut = flag.String("chart", "", "write the spending chart as PNG to this file")
		share    = flag.Bool("share", false, "print the share link")
		timeout  = flag.Duration("timeout", 10*time.Second, "how long to wait for the ledger")
	)
	flag.Parse()

	cfg, logger := cli.Bootstrap(log.ComponentExport)
	if err := run(cfg, logger, options{
		email:    *email,
		password: *password,
		pdf:      *pdfPath,
		markdown: *mdPath,
		chart:    *chartOut,
		share:    *share,
		timeout:  *timeout,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	email, password      string
	pdf, markdown, chart string
	share                bool
	timeout              time.Duration
}

func run(cfg *config.Config, logger *log.Logger, opts options) error {
	if opts.email == "" || opts.password == "" {
		return errors.New("email and password are required (-email/-password or CASHBOOK_EMAIL/CASHBOOK_PASSWORD)")
	}

	// The report only reads, so no change queue is needed.
	backendCfg, err := backend.FromAppConfig(cfg, "")
	if err != nil {
		return err
	}
	backendCfg.AMQPURL = ""
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	svc, err := auth.NewService(result.Store, auth.Config{
		Secret:     []byte(cfg.AuthJWTSecret),
		TokenTTL:   cfg.AuthTokenTTL,
		BcryptCost: cfg.AuthBcryptCost,
	})
	if err != nil {
		return err
	}

	ws := cashbook.New(auth.NewClient(svc), result.Store, cashbook.Options{
		Location:  cfg.Location(),
		ShareBase: cfg.ShareBaseURL,
	})
	defer ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if _, err := ws.SignIn(ctx, opts.email, opts.password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	st, err := firstSnapshot(ctx, ws)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, st)
	if opts.share {
		link, err := ws.ShareURL()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, link)
	}

	wrote := false
	for _, out := range []struct {
		path  string
		write func(io.Writer) error
	}{
		{opts.pdf, ws.ExportPDF},
		{opts.markdown, ws.ExportMarkdown},
		{opts.chart, ws.Chart},
	} {
		if out.path == "" {
			continue
		}
		if err := writeFile(out.path, out.write); err != nil {
			return err
		}
		logger.Info("Report written", "path", out.path)
		wrote = true
	}
	if wrote {
		return nil
	}

	table, err := ws.Report()
	if errors.Is(err, export.ErrNothingToExport) {
		fmt.Fprintln(os.Stdout, "No transactions yet.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return export.WriteText(os.Stdout, table)
}

// firstSnapshot waits until the ledger has delivered its first list for the
// signed-in session.
func firstSnapshot(ctx context.Context, ws *cashbook.Client) (cashbook.State, error) {
	ready := make(chan cashbook.State, 1)
	var once sync.Once
	stop := ws.Subscribe(func(st cashbook.State) {
		if st.Session != nil && (!st.Loading || st.FeedStopped) {
			once.Do(func() { ready <- st })
		}
	})
	defer stop()

	select {
	case st := <-ready:
		if st.FeedStopped {
			return st, errors.New("ledger feed failed")
		}
		return st, nil
	case <-ctx.Done():
		return cashbook.State{}, fmt.Errorf("waiting for ledger: %w", ctx.Err())
	}
}

func printSummary(w io.Writer, st cashbook.State) {
	s := st.Summary
	fmt.Fprintf(w, "Signed in as %s\n", st.Session.Name())
	fmt.Fprintf(w, "Net Balance:        %s\n", core.FormatDecimal(s.Net))
	fmt.Fprintf(w, "My Spending:        %s\n", core.FormatDecimal(s.MySpending))
	fmt.Fprintf(w, "Partner Spending:   %s\n", core.FormatDecimal(s.PartnerSpending))
	fmt.Fprintf(w, "Total Transactions: %d\n", s.Count)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
