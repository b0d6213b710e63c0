package main

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/Abraao-Filho/serenity/internal/fusefs"
	"github.com/Abraao-Filho/serenity/internal/ksim"
	"github.com/Abraao-Filho/serenity/internal/logging"
	"github.com/Abraao-Filho/serenity/internal/procfs"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
)

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   helpTextDumpUse,
		Short: helpTextDumpShort,
		Long: `dump generates every file of the process filesystem without mounting it
and writes the whole tree into a gzipped tar archive, for inspection on
systems without FUSE or for capturing one snapshot of the kernel state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDump(args[0])
		},
	}
}

func runDump(outPath string) error {
	rbuf := logging.NewRingBuffer(ringBufferSize, os.Stdout)

	kern := ksim.NewKernel(rbuf)
	seedKernel(kern)

	core := procfs.New(kern.Collaborators())

	fsys, err := fusefs.NewFS(core, nil, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}
	registerSysVariables(core, fsys, rbuf)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("dump create error: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	now := time.Now()
	err = fsys.Walk(context.Background(), func(path string, id procfs.Key, _ fs.Node, attr fuse.Attr) error {
		name := strings.TrimPrefix(path, "/")
		if name == "" {
			return nil
		}

		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(attr.Mode.Perm()),
			ModTime: now,
		}

		switch {
		case attr.Mode.IsDir():
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"

			return writeHeader(tw, hdr)

		case attr.Mode&os.ModeSymlink != 0:
			target, err := core.ReadLink(id)
			if err != nil {
				return nil // unbound link, nothing to record
			}
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = target

			return writeHeader(tw, hdr)

		default:
			content, err := core.ReadAll(id)
			if err != nil {
				return fmt.Errorf("dump read error at %s: %w", path, err)
			}
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(content))
			if err := writeHeader(tw, hdr); err != nil {
				return err
			}
			if _, err := tw.Write(content); err != nil {
				return fmt.Errorf("dump write error at %s: %w", path, err)
			}

			return nil
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("Dumped filesystem tree to %s.\n", outPath)

	return nil
}

func writeHeader(tw *tar.Writer, hdr *tar.Header) error {
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("dump header error at %s: %w", hdr.Name, err)
	}

	return nil
}
