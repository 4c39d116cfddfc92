package main_test

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/meigma/arcguard/cmd/arcguard/cli"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"arcguard": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
	}))
}

func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			// testscript sets HOME=/no-home which is read-only
			env.Setenv("XDG_CONFIG_HOME", env.WorkDir+"/.config")
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"mktar":  cmdMktar,
			"mkbomb": cmdMkbomb,
		},
	})
}

// cmdMktar writes a tar archive from entry descriptions.
// Usage: mktar <output> <kind>:<name>[=<body or target>]...
// Kinds are file, dir, symlink, hardlink and setuid.
func cmdMktar(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("mktar does not support negation")
	}
	if len(args) < 2 {
		ts.Fatalf("usage: mktar <output> <kind>:<name>[=<value>]...")
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, arg := range args[1:] {
		kind, rest, ok := strings.Cut(arg, ":")
		if !ok {
			ts.Fatalf("mktar: bad entry %q", arg)
		}
		name, value, _ := strings.Cut(rest, "=")
		hdr := &tar.Header{Name: name, Mode: 0o644, ModTime: time.Unix(0, 0)}
		switch kind {
		case "file":
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(value))
		case "setuid":
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0o4755
			hdr.Size = int64(len(value))
		case "dir":
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case "symlink":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = value
			value = ""
		case "hardlink":
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = value
			value = ""
		default:
			ts.Fatalf("mktar: unknown kind %q", kind)
		}
		ts.Check(tw.WriteHeader(hdr))
		if value != "" {
			_, err := tw.Write([]byte(value))
			ts.Check(err)
		}
	}
	ts.Check(tw.Close())
	ts.Check(os.WriteFile(ts.MkAbs(args[0]), buf.Bytes(), 0o644))
}

// cmdMkbomb writes a gzip tar holding one file of zeros.
// Usage: mkbomb <output> <size>
func cmdMkbomb(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("mkbomb does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: mkbomb <output> <size>")
	}
	size, err := strconv.ParseInt(args[1], 10, 64)
	ts.Check(err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	ts.Check(tw.WriteHeader(&tar.Header{
		Name:     "zeros.bin",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     size,
		ModTime:  time.Unix(0, 0),
	}))
	_, err = tw.Write(make([]byte, size))
	ts.Check(err)
	ts.Check(tw.Close())
	ts.Check(zw.Close())

	out := ts.MkAbs(args[0])
	ts.Check(os.MkdirAll(filepath.Dir(out), 0o755))
	ts.Check(os.WriteFile(out, buf.Bytes(), 0o644))
}
