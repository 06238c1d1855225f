package ctl

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/featurebasedb/lakeingest"
	cataloghttp "github.com/featurebasedb/lakeingest/catalog/http"
	"github.com/featurebasedb/lakeingest/errors"
)

// ServeCatalogCommand serves a catalog over HTTP.
type ServeCatalogCommand struct {
	Config *Config

	// Bind is the address to listen on.
	Bind string

	*lakeingest.CmdIO

	ln     net.Listener
	srv    *http.Server
	closer io.Closer
	done   chan error
}

// NewServeCatalogCommand returns a new instance of ServeCatalogCommand.
func NewServeCatalogCommand(stdin io.Reader, stdout, stderr io.Writer) *ServeCatalogCommand {
	return &ServeCatalogCommand{
		Config: NewConfig(),
		Bind:   ":8181",
		CmdIO:  lakeingest.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run serves until ctx is done.
func (cmd *ServeCatalogCommand) Run(ctx context.Context) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return cmd.Close()
	case err := <-cmd.done:
		cmd.closer.Close()
		return err
	}
}

// Start opens the catalog and starts serving it in the background.
func (cmd *ServeCatalogCommand) Start() error {
	lc, err := cmd.Config.setupLogger(cmd.CmdIO)
	if err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	log := cmd.Logger()

	if u := cmd.Config.Catalog; strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		lc.Close()
		return errors.New(ErrConfig, "serve-catalog needs a local catalog, not "+u)
	}
	tc, err := cmd.Config.setupTracing("lakeingest-catalog", log)
	if err != nil {
		lc.Close()
		return err
	}
	cat, cc, err := cmd.Config.OpenCatalog(log)
	if err != nil {
		tc.Close()
		lc.Close()
		return err
	}
	cmd.closer = multiCloser{cc, tc, lc}

	cmd.ln, err = net.Listen("tcp", cmd.Bind)
	if err != nil {
		cmd.closer.Close()
		return errors.Wrapf(err, "listening on %s", cmd.Bind)
	}
	cmd.srv = &http.Server{Handler: cataloghttp.Handler(cat, log)}
	cmd.done = make(chan error, 1)
	go func() {
		err := cmd.srv.Serve(cmd.ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		cmd.done <- err
	}()
	log.Printf("serving catalog %s on http://%s", cmd.Config.Catalog, cmd.ln.Addr())
	return nil
}

// Addr returns the address being served, once started.
func (cmd *ServeCatalogCommand) Addr() string {
	if cmd.ln == nil {
		return ""
	}
	return cmd.ln.Addr().String()
}

// Close shuts the server down and closes the catalog.
func (cmd *ServeCatalogCommand) Close() error {
	if cmd.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.srv.Shutdown(ctx)
	if cerr := cmd.closer.Close(); err == nil {
		err = cerr
	}
	cmd.srv = nil
	return err
}

// multiCloser closes each closer in order, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
