package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/blog-ueditor/export-api/internal/archive"
)

type listJobOptions struct {
	Limit       int
	ExpiredOnly bool
}

type manifestOptions struct {
	ID    string
	Query string
}

type purgeOptions struct {
	OlderThan time.Duration
	All       bool
	DryRun    bool
	Yes       bool
}

// diskEntry is one archive or leftover workspace under the data directory.
type diskEntry struct {
	ID       string
	Kind     string
	Size     int64
	Modified time.Time
}

func runList(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobFlags(args)
	if err != nil {
		return err
	}

	entries, err := scanDataDir(cmdCtx.Config.Export.DataDir)
	if err != nil {
		return err
	}

	ttl := cmdCtx.Config.Export.JobTTL
	now := time.Now()
	if opts.ExpiredOnly {
		entries = filterExpired(entries, now, ttl)
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	if len(entries) == 0 {
		return writeln(os.Stdout, "(no exports on disk)")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tKind\tSize\tAge\tExpired"); err != nil {
		return fmt.Errorf("write list header: %w", err)
	}
	for _, e := range entries {
		age := now.Sub(e.Modified).Truncate(time.Second)
		expired := "no"
		if now.Sub(e.Modified) > ttl {
			expired = "yes"
		}
		if err := writef(w, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Kind, e.Size, age, expired); err != nil {
			return fmt.Errorf("write list row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush list table: %w", err)
	}

	return writef(os.Stdout, "\nTotal: %d\n", len(entries))
}

func runManifest(cmdCtx *commandContext, args []string) error {
	opts, err := parseManifestFlags(args)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(cmdCtx.Config.Export.DataDir, opts.ID+".zip")
	raw, err := archive.ReadManifest(archivePath)
	if err != nil {
		return fmt.Errorf("read manifest for %s: %w", opts.ID, err)
	}

	if opts.Query == "" {
		return printJSONDocument(raw)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	result, err := jmespath.Search(opts.Query, doc)
	if err != nil {
		return fmt.Errorf("evaluate query %q: %w", opts.Query, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode query result: %w", err)
	}
	return writef(os.Stdout, "%s\n", out)
}

func runPurge(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args)
	if err != nil {
		return err
	}

	cutoff := opts.OlderThan
	if cutoff <= 0 {
		cutoff = cmdCtx.Config.Export.JobTTL
	}

	entries, err := scanDataDir(cmdCtx.Config.Export.DataDir)
	if err != nil {
		return err
	}

	now := time.Now()
	var doomed []diskEntry
	for _, e := range entries {
		if opts.All || now.Sub(e.Modified) > cutoff {
			doomed = append(doomed, e)
		}
	}

	if len(doomed) == 0 {
		return writeln(os.Stdout, "Nothing to purge")
	}

	if opts.DryRun {
		for _, e := range doomed {
			if err := writef(os.Stdout, "would remove %s (%s)\n", e.ID, e.Kind); err != nil {
				return fmt.Errorf("print dry-run entry: %w", err)
			}
		}
		return writef(os.Stdout, "Dry-run: would remove %d entries\n", len(doomed))
	}

	if confirmErr := confirmPurge(opts, len(doomed)); confirmErr != nil {
		return confirmErr
	}

	removed := 0
	for _, e := range doomed {
		target := filepath.Join(cmdCtx.Config.Export.DataDir, e.ID)
		if e.Kind == "archive" {
			target += ".zip"
		}
		if rmErr := os.RemoveAll(target); rmErr != nil {
			cmdCtx.Logger.Error("purge entry failed", "path", target, "error", rmErr)
			continue
		}
		removed++
	}

	cmdCtx.Logger.Info("purge complete", "removed", removed, "candidates", len(doomed))
	return writef(os.Stdout, "Removed %d/%d entries\n", removed, len(doomed))
}

// scanDataDir returns archives and job workspaces sorted oldest first.
func scanDataDir(dataDir string) ([]diskEntry, error) {
	dirEntries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir %s: %w", dataDir, err)
	}

	var out []diskEntry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		info, infoErr := de.Info()
		if infoErr != nil {
			continue
		}

		switch {
		case !de.IsDir() && strings.HasSuffix(name, ".zip"):
			out = append(out, diskEntry{
				ID:       strings.TrimSuffix(name, ".zip"),
				Kind:     "archive",
				Size:     info.Size(),
				Modified: info.ModTime(),
			})
		case de.IsDir():
			out = append(out, diskEntry{
				ID:       name,
				Kind:     "workspace",
				Size:     dirSize(filepath.Join(dataDir, name)),
				Modified: info.ModTime(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Modified.Before(out[j].Modified) })
	return out, nil
}

func filterExpired(entries []diskEntry, now time.Time, ttl time.Duration) []diskEntry {
	var out []diskEntry
	for _, e := range entries {
		if now.Sub(e.Modified) > ttl {
			out = append(out, e)
		}
	}
	return out
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // size is best-effort
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func printJSONDocument(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writef(os.Stdout, "%s\n", out)
}

func confirmPurge(opts purgeOptions, count int) error {
	if opts.Yes {
		return nil
	}
	if err := writef(os.Stderr, "About to remove %d entries. Type \"yes\" to continue: ", count); err != nil {
		return fmt.Errorf("print purge prompt: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return errors.New("aborted by user")
	}
	if strings.TrimSpace(resp) != "yes" {
		return errors.New("aborted by user")
	}
	return nil
}

func parseListJobFlags(args []string) (listJobOptions, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listJobOptions
	fs.IntVar(&opts.Limit, "limit", 0, "Maximum entries to display (0 for unlimited)")
	fs.BoolVar(&opts.ExpiredOnly, "expired", false, "Show only entries past the configured job TTL")

	if err := fs.Parse(args); err != nil {
		return listJobOptions{}, err
	}
	if opts.Limit < 0 {
		return listJobOptions{}, errors.New("--limit must not be negative")
	}
	return opts, nil
}

func parseManifestFlags(args []string) (manifestOptions, error) {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts manifestOptions
	fs.StringVar(&opts.ID, "id", "", "Export ID to inspect (required)")
	fs.StringVar(&opts.Query, "query", "", "JMESPath expression applied to the manifest document")

	if err := fs.Parse(args); err != nil {
		return manifestOptions{}, err
	}

	// Allow the ID as a bare positional argument as well.
	if opts.ID == "" && fs.NArg() > 0 {
		opts.ID = fs.Arg(0)
	}
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return manifestOptions{}, errors.New("--id is required")
	}
	if opts.Query != "" {
		if _, err := jmespath.Compile(opts.Query); err != nil {
			return manifestOptions{}, fmt.Errorf("invalid --query expression: %w", err)
		}
	}
	return opts, nil
}

func parsePurgeFlags(args []string) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts purgeOptions
	fs.DurationVar(&opts.OlderThan, "older-than", 0, "Remove entries older than this duration (defaults to the configured job TTL)")
	fs.BoolVar(&opts.All, "all", false, "Remove every entry regardless of age")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return purgeOptions{}, err
	}
	if opts.OlderThan < 0 {
		return purgeOptions{}, errors.New("--older-than must not be negative")
	}
	return opts, nil
}
