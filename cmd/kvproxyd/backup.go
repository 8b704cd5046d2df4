package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kng-mtd/kvproxy"
	"github.com/kng-mtd/kvproxy/archive"
	"github.com/kng-mtd/kvproxy/config"
)

type backupFlags struct {
	out    string
	tenant string
	format string
}

func newBackupCommand(configPath *string, logOut io.Writer) *cobra.Command {
	var f backupFlags
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the store to a file",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", `output file; "-" writes to stdout`)
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "only back up this tenant")
	cmd.Flags().StringVar(&f.format, "format", "", "archive format: "+strings.Join(archive.Names(), ", ")+"; default from the file extension, else json")
	load := configured(cmd, configPath, false)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		return runBackup(cmd.Context(), cfg, f, cmd.OutOrStdout(), cmd.ErrOrStderr(), logOut)
	}
	return cmd
}

func runBackup(ctx context.Context, cfg config.Config, f backupFlags, stdout, stderr, logOut io.Writer) (err error) {
	format, err := pickFormat(f.format, f.out)
	if err != nil {
		return err
	}
	d, err := buildDeps(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer closeDeps(d, &err)

	start := time.Now()
	pairs, err := d.proxy.Backup(ctx, f.tenant)
	if err != nil {
		return err
	}
	b, err := format.Encode(pairs)
	if err != nil {
		return fmt.Errorf("encode %s archive: %w", format.Name, err)
	}
	if f.out == "-" {
		if _, err := stdout.Write(b); err != nil {
			return err
		}
	} else if err := os.WriteFile(f.out, b, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "backed up %s entries (%s, %s) in %s\n",
		humanize.Comma(int64(len(pairs))), humanize.Bytes(uint64(len(b))), format.Name, time.Since(start).Round(time.Millisecond))
	return nil
}

type restoreFlags struct {
	in     string
	format string
}

func newRestoreCommand(configPath *string, logOut io.Writer) *cobra.Command {
	var f restoreFlags
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Write a snapshot file back into the store",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&f.in, "in", "i", "-", `input file; "-" reads stdin`)
	cmd.Flags().StringVar(&f.format, "format", "", "archive format: "+strings.Join(archive.Names(), ", ")+"; default from the file extension, else json")
	load := configured(cmd, configPath, false)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		return runRestore(cmd.Context(), cfg, f, cmd.InOrStdin(), cmd.ErrOrStderr(), logOut)
	}
	return cmd
}

func runRestore(ctx context.Context, cfg config.Config, f restoreFlags, stdin io.Reader, stderr, logOut io.Writer) (err error) {
	format, err := pickFormat(f.format, f.in)
	if err != nil {
		return err
	}
	var b []byte
	if f.in == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(f.in)
	}
	if err != nil {
		return err
	}
	pairs, err := format.Decode(b)
	if err != nil {
		return fmt.Errorf("decode %s archive: %w", format.Name, err)
	}

	d, err := buildDeps(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer closeDeps(d, &err)

	start := time.Now()
	res, err := d.proxy.Restore(ctx, pairs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "restored %s of %s entries (%s) in %s\n",
		humanize.Comma(int64(res.Written)), humanize.Comma(int64(len(pairs))), humanize.Bytes(uint64(len(b))), time.Since(start).Round(time.Millisecond))
	if res.Failed > 0 {
		for _, r := range res.Results {
			if !r.Success {
				fmt.Fprintf(stderr, "  entry %d %q: %s\n", r.Index, r.Key, r.Error)
			}
		}
		return &kvproxy.Error{Code: kvproxy.EInvalid, Op: "restore", Msg: fmt.Sprintf("%d entries failed", res.Failed)}
	}
	return nil
}

// pickFormat resolves --format, falling back to the file extension.
func pickFormat(name, path string) (archive.Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
		if f, ok := archive.ByName(name); ok {
			return f, nil
		}
		return archive.JSON, nil
	}
	f, ok := archive.ByName(name)
	if !ok {
		return archive.Format{}, fmt.Errorf("unknown format %q; want one of %s", name, strings.Join(archive.Names(), ", "))
	}
	return f, nil
}

func closeDeps(d *deps, err *error) {
	if cerr := d.close(context.Background()); cerr != nil && *err == nil {
		*err = cerr
	}
}
