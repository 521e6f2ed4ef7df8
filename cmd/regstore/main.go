package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kjk/regstore/backup"
	"github.com/kjk/regstore/config"
	"github.com/kjk/regstore/log"
	"github.com/kjk/regstore/metrics"
	"github.com/kjk/regstore/recstore"
	"github.com/tidwall/pretty"
)

const usage = `usage: regstore [-config file.yaml] [-metrics] <command> [flags]

commands:
  save -name NAME -last-name LAST -email EMAIL [-key KEY]
  key-exists KEY
  user-exists -email EMAIL
  get-key -email EMAIL
  list [-json]
  backup [-out PATH] [-upload]
  restore -in PATH
`

// exit code when a queried key or user doesn't exist
const exitNotFound = 1

type app struct {
	cfg   config.Config
	store recstore.Store
	out   io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	flags := flag.NewFlagSet("regstore", flag.ContinueOnError)
	var (
		flgConfig  string
		flgMetrics bool
	)
	flags.StringVar(&flgConfig, "config", "", "path to YAML config file")
	flags.BoolVar(&flgMetrics, "metrics", false, "print store operation counts on exit")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	cfg, err := config.Load(flgConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	}
	log.Init(cfg.LogConfig())
	defer log.Close()

	ctx := context.Background()
	store, err := recstore.Open(ctx, cfg.StoreOptions())
	if err != nil {
		log.Errorf("failed to open store: %s\n", err)
		return 1
	}
	a := &app{
		cfg:   cfg,
		store: metrics.Wrap(store),
		out:   out,
	}
	defer a.store.Close()

	code := a.runCommand(ctx, flags.Arg(0), flags.Args()[1:])
	if flgMetrics {
		printOpCounts(out)
	}
	return code
}

func (a *app) runCommand(ctx context.Context, cmd string, args []string) int {
	var err error
	code := 0
	switch cmd {
	case "save":
		err = a.cmdSave(ctx, args)
	case "key-exists":
		code, err = a.cmdKeyExists(ctx, args)
	case "user-exists":
		code, err = a.cmdUserExists(ctx, args)
	case "get-key":
		code, err = a.cmdGetKey(ctx, args)
	case "list":
		err = a.cmdList(ctx, args)
	case "backup":
		err = a.cmdBackup(ctx, args)
	case "restore":
		err = a.cmdRestore(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command '%s'\n%s", cmd, usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 2
	}
	if err != nil {
		log.Errorf("%s: %s\n", cmd, err)
		if errors.Is(err, recstore.ErrMissingField) {
			return 2
		}
		return 1
	}
	return code
}

func (a *app) cmdSave(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("save", flag.ContinueOnError)
	var rec recstore.Record
	var key string
	flags.StringVar(&rec.Name, "name", "", "first name")
	flags.StringVar(&rec.LastName, "last-name", "", "last name")
	flags.StringVar(&rec.Email, "email", "", "email")
	flags.StringVar(&key, "key", "", "access key, generated if not given")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if key == "" {
		key = recstore.NewKey()
	}
	if err := a.store.Save(ctx, rec, key); err != nil {
		return err
	}
	fmt.Fprintln(a.out, key)
	return nil
}

func printBool(w io.Writer, v bool) int {
	fmt.Fprintln(w, v)
	if !v {
		return exitNotFound
	}
	return 0
}

func (a *app) cmdKeyExists(ctx context.Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: key-exists needs exactly one KEY argument", recstore.ErrMissingField)
	}
	found, err := a.store.KeyExists(ctx, args[0])
	if err != nil {
		return 0, err
	}
	return printBool(a.out, found), nil
}

func parseEmail(name string, args []string) (recstore.Record, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	var rec recstore.Record
	flags.StringVar(&rec.Email, "email", "", "email")
	err := flags.Parse(args)
	return rec, err
}

func (a *app) cmdUserExists(ctx context.Context, args []string) (int, error) {
	rec, err := parseEmail("user-exists", args)
	if err != nil {
		return 0, err
	}
	found, err := a.store.UserExists(ctx, rec)
	if err != nil {
		return 0, err
	}
	return printBool(a.out, found), nil
}

func (a *app) cmdGetKey(ctx context.Context, args []string) (int, error) {
	rec, err := parseEmail("get-key", args)
	if err != nil {
		return 0, err
	}
	key, err := a.store.GetKeyForUser(ctx, rec)
	if errors.Is(err, recstore.ErrNotFound) {
		fmt.Fprintln(a.out, "not found")
		return exitNotFound, nil
	}
	if err != nil {
		return 0, err
	}
	fmt.Fprintln(a.out, key)
	return 0, nil
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("list", flag.ContinueOnError)
	var flgJSON bool
	flags.BoolVar(&flgJSON, "json", false, "print as JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	entries, err := a.store.Entries(ctx)
	if err != nil {
		return err
	}
	if !flgJSON {
		for i := range entries {
			io.WriteString(a.out, recstore.MarshalLine(&entries[i]))
		}
		return nil
	}
	if entries == nil {
		entries = []recstore.Entry{}
	}
	d, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = a.out.Write(pretty.Pretty(d))
	return err
}

func (a *app) cmdBackup(ctx context.Context, args []string) error {
	bc := a.cfg.Backup
	flags := flag.NewFlagSet("backup", flag.ContinueOnError)
	var (
		flgOut    string
		flgUpload bool
	)
	flags.StringVar(&flgOut, "out", "", "snapshot path, defaults to a timestamped file in backup.dir")
	flags.BoolVar(&flgUpload, "upload", false, "upload the snapshot to s3")
	if err := flags.Parse(args); err != nil {
		return err
	}
	compression := bc.Compression
	if flgOut == "" {
		flgOut = filepath.Join(bc.Dir, backup.SnapshotName(time.Now(), compression))
	} else {
		compression = backup.CompressionFromPath(flgOut)
	}
	n, err := backup.Snapshot(ctx, a.store, flgOut, compression)
	if err != nil {
		return err
	}
	log.Infof("wrote %d entries to '%s'\n", n, flgOut)
	fmt.Fprintln(a.out, flgOut)
	if !flgUpload {
		return nil
	}
	s3 := bc.S3
	up, err := backup.NewUploader(ctx, &backup.S3Config{
		Access:   s3.Access,
		Secret:   s3.Secret,
		Bucket:   s3.Bucket,
		Endpoint: s3.Endpoint,
		Region:   s3.Region,
	})
	if err != nil {
		return err
	}
	remotePath := backup.RemotePath(bc.RemotePrefix, flgOut)
	if _, err = up.Upload(ctx, remotePath, flgOut); err != nil {
		return err
	}
	log.Infof("uploaded '%s' as '%s'\n", flgOut, remotePath)
	return nil
}

func (a *app) cmdRestore(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("restore", flag.ContinueOnError)
	var flgIn string
	flags.StringVar(&flgIn, "in", "", "snapshot to restore")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flgIn == "" {
		return fmt.Errorf("%w: -in", recstore.ErrMissingField)
	}
	n, err := backup.Restore(ctx, flgIn, a.store)
	if err != nil {
		return err
	}
	log.Infof("restored %d entries from '%s'\n", n, flgIn)
	return nil
}

func printOpCounts(w io.Writer) {
	counts, err := metrics.OpCounts()
	if log.IfErrf(err) {
		return
	}
	var keys []string
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %d\n", k, int64(counts[k]))
	}
}
