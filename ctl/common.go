package ctl

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
)

// setupLogger points cmdio's logger at LogPath, if set, at the configured
// verbosity. The log file is reopened on SIGHUP so it can be rotated. The
// closer stops that and closes the file.
func (c *Config) setupLogger(cmdio *lakeingest.CmdIO) (io.Closer, error) {
	if c.LogPath == "" {
		if c.Verbose {
			cmdio.SetLogger(logger.NewVerboseLogger(cmdio.Stderr))
		}
		return nopCloser{}, nil
	}
	log, fw, err := logger.NewFileLogger(c.LogPath, c.Verbose)
	if err != nil {
		return nil, err
	}
	cmdio.SetLogger(log)

	lf := &logFile{fw: fw, hup: make(chan os.Signal, 1), done: make(chan struct{})}
	signal.Notify(lf.hup, syscall.SIGHUP)
	go func() {
		defer close(lf.done)
		for range lf.hup {
			if err := fw.Reopen(); err != nil {
				fmt.Fprintf(cmdio.Stderr, "reopening log %s: %v\n", fw.Name(), err)
				continue
			}
			log.Infof("reopened log %s", fw.Name())
		}
	}()
	return lf, nil
}

// logFile closes a log file reopened on SIGHUP.
type logFile struct {
	fw   *logger.FileWriter
	hup  chan os.Signal
	done chan struct{}
}

func (l *logFile) Close() error {
	signal.Stop(l.hup)
	close(l.hup)
	<-l.done
	return l.fw.Close()
}

// entities resolves entity or table names to descriptors. No names means
// every registered entity.
func entities(names []string) ([]*schema.Descriptor, error) {
	if len(names) == 0 {
		return schema.Descriptors(), nil
	}
	out := make([]*schema.Descriptor, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		for _, n := range strings.Split(name, ",") {
			if strings.TrimSpace(n) == "" {
				continue
			}
			desc, err := schema.Lookup(n)
			if err != nil {
				return nil, err
			}
			if seen[desc.Table] {
				continue
			}
			seen[desc.Table] = true
			out = append(out, desc)
		}
	}
	return out, nil
}
